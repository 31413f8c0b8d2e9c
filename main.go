package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sandeepkandula/drivesync/config"
	"github.com/sandeepkandula/drivesync/sync"
)

func main() {
	setupLogging(false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(config.Load, newRemote).ExecuteContext(ctx); err != nil {
		stop()
		fatal(err)
	}
}

// configError marks failures found before any sync work starts.
type configError struct{ error }

func (e configError) Cause() error  { return e.error }
func (e configError) Unwrap() error { return e.error }

func fatal(err error) {
	msg := "sync failed"
	var cerr configError
	if errors.As(err, &cerr) {
		msg = "invalid configuration"
	}
	log.WithError(err).Error(msg)
	os.Exit(1)
}

func setupLogging(verbose bool) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:    true,
		QuoteEmptyFields: true,
	})
	log.SetOutput(os.Stderr)
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// newRootCmd builds the command line. The environment is read by load when
// the command runs, and flags given on the command line override it.
func newRootCmd(load func() (config.Config, error), connect remoteFactory) *cobra.Command {
	var set config.Config
	cmd := &cobra.Command{
		Use:   "drivesync",
		Short: "Mirror a local directory into a Google Drive folder",
		Long: "drivesync uploads new and changed files from a local directory into a remote\n" +
			"folder, creating folders as needed and deleting remote files that no longer\n" +
			"exist locally. Configuration comes from the environment; flags override it.",
		Args: cobra.NoArgs,

		// main prints the error itself.
		SilenceUsage:  true,
		SilenceErrors: true,

		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return configError{errors.Wrap(err, "environment")}
			}
			applyFlags(cmd, &cfg, set)
			setupLogging(cfg.Verbose)
			return run(cmd.Context(), cfg, afero.NewOsFs(), connect)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&set.FolderPath, "src", "", "local directory to sync ($FOLDER_PATH)")
	flags.StringVar(&set.DriveFolderID, "folder-id", "", "destination Drive folder ($GOOGLE_DRIVE_FOLDER_ID)")
	flags.StringVar(&set.Backend, "backend", config.BackendDrive, "remote backend: drive or s3 ($SYNC_BACKEND)")
	flags.StringVar(&set.Overwrite, "overwrite", string(sync.OverwriteChanged),
		"existing remote files: changed (size or mtime differs), always, never ($SYNC_OVERWRITE)")
	flags.BoolVar(&set.Delete, "delete", true, "delete remote files absent locally ($SYNC_DELETE)")
	flags.BoolVar(&set.PruneFolders, "prune-folders", false, "also delete remote folders absent locally ($SYNC_PRUNE_FOLDERS)")
	flags.BoolVar(&set.DryRun, "dry-run", false, "log actions without making changes ($SYNC_DRY_RUN)")
	flags.BoolVarP(&set.Verbose, "verbose", "v", false, "debug logging ($SYNC_VERBOSE)")
	return cmd
}

// applyFlags copies the flags given on the command line from set into cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config, set config.Config) {
	flags := cmd.Flags()
	if flags.Changed("src") {
		cfg.FolderPath = set.FolderPath
	}
	if flags.Changed("folder-id") {
		cfg.DriveFolderID = set.DriveFolderID
	}
	if flags.Changed("backend") {
		cfg.Backend = set.Backend
	}
	if flags.Changed("overwrite") {
		cfg.Overwrite = set.Overwrite
	}
	if flags.Changed("delete") {
		cfg.Delete = set.Delete
	}
	if flags.Changed("prune-folders") {
		cfg.PruneFolders = set.PruneFolders
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = set.DryRun
	}
	if flags.Changed("verbose") {
		cfg.Verbose = set.Verbose
	}
}

// run syncs once. Configuration and the local root are checked before the
// remote is contacted.
func run(ctx context.Context, cfg config.Config, fsys afero.Fs, connect remoteFactory) error {
	if err := cfg.Validate(); err != nil {
		return configError{errors.Wrap(err, "config")}
	}
	policy, err := cfg.OverwritePolicy()
	if err != nil {
		return configError{err}
	}

	logger := log.WithFields(log.Fields{
		"src":     cfg.FolderPath,
		"backend": cfg.Backend,
		"folder":  cfg.RootFolderID(),
	})

	n, err := sync.CountFiles(fsys, cfg.FolderPath)
	if err != nil {
		return err
	}
	if n == 0 {
		logger.Warn("No local files found, nothing to sync")
		return nil
	}

	dst, err := connect(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "connect")
	}

	if cfg.DryRun {
		logger = logger.WithField("dry-run", true)
	}
	logger.Infof("Syncing %d local files", n)
	stats, err := sync.Sync(ctx, sync.Options{
		Src:          cfg.FolderPath,
		Dst:          dst,
		FolderID:     cfg.RootFolderID(),
		Fs:           fsys,
		Overwrite:    policy,
		DryRun:       cfg.DryRun,
		Delete:       cfg.Delete,
		PruneFolders: cfg.PruneFolders,
		Log:          logger,
	})
	if err != nil {
		return err
	}

	logger.WithFields(log.Fields{
		"created": stats.Created,
		"updated": stats.Updated,
		"skipped": stats.Skipped,
		"deleted": stats.Deleted,
		"folders": stats.Folders,
	}).Info("Sync complete")
	return nil
}
