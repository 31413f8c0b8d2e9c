// Package config reads the sync configuration from the environment.
package config

import (
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"

	"github.com/sandeepkandula/drivesync/sync"
)

// Backends a sync can target.
const (
	BackendDrive = "drive"
	BackendS3    = "s3"
)

var folderIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Config is the complete process configuration.
type Config struct {
	FolderPath string `envconfig:"FOLDER_PATH"`
	Backend    string `envconfig:"SYNC_BACKEND" default:"drive"`

	DriveFolderID   string `envconfig:"GOOGLE_DRIVE_FOLDER_ID"`
	CredentialsFile string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
	CredentialsJSON string `envconfig:"GOOGLE_DRIVE_CREDENTIALS"`
	Impersonate     string `envconfig:"GOOGLE_DRIVE_IMPERSONATE"`
	UseTrash        bool   `envconfig:"SYNC_USE_TRASH"`

	S3Bucket       string `envconfig:"S3_BUCKET"`
	S3Prefix       string `envconfig:"S3_PREFIX"`
	S3Region       string `envconfig:"S3_REGION" default:"us-east-1"`
	S3StorageClass string `envconfig:"S3_STORAGE_CLASS" default:"STANDARD"`

	Overwrite    string `envconfig:"SYNC_OVERWRITE" default:"changed"`
	Delete       bool   `envconfig:"SYNC_DELETE" default:"true"`
	PruneFolders bool   `envconfig:"SYNC_PRUNE_FOLDERS"`
	DryRun       bool   `envconfig:"SYNC_DRY_RUN"`
	MaxRetries   uint64 `envconfig:"SYNC_MAX_RETRIES" default:"5"`
	Verbose      bool   `envconfig:"SYNC_VERBOSE"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, errors.Wrap(err, "read environment")
	}
	return c, nil
}

// Validate checks the configuration and expands home-relative paths. It
// never touches the network or the local tree.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.FolderPath) == "" {
		return errors.New("FOLDER_PATH is not set")
	}
	var err error
	if c.FolderPath, err = homedir.Expand(c.FolderPath); err != nil {
		return errors.Wrap(err, "FOLDER_PATH")
	}
	if c.CredentialsFile, err = homedir.Expand(c.CredentialsFile); err != nil {
		return errors.Wrap(err, "GOOGLE_APPLICATION_CREDENTIALS")
	}

	if _, err := c.OverwritePolicy(); err != nil {
		return err
	}

	switch c.Backend {
	case BackendDrive:
		if c.DriveFolderID == "" {
			return errors.New("GOOGLE_DRIVE_FOLDER_ID is not set")
		}
		if !folderIDPattern.MatchString(c.DriveFolderID) {
			return errors.Errorf("GOOGLE_DRIVE_FOLDER_ID %q is malformed", c.DriveFolderID)
		}
	case BackendS3:
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is not set")
		}
	default:
		return errors.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendDrive, BackendS3)
	}
	return nil
}

// OverwritePolicy returns the parsed SYNC_OVERWRITE value.
func (c Config) OverwritePolicy() (sync.Overwrite, error) {
	o, err := sync.ParseOverwrite(c.Overwrite)
	return o, errors.Wrap(err, "SYNC_OVERWRITE")
}

// RootFolderID is the remote folder the local root is mirrored into.
func (c Config) RootFolderID() string {
	if c.Backend == BackendS3 {
		return sync.S3FolderID(c.S3Prefix)
	}
	return c.DriveFolderID
}

// Retry returns the retry bounds for remote calls.
func (c Config) Retry() sync.Retry {
	r := sync.DefaultRetry
	r.MaxRetries = c.MaxRetries
	return r
}
