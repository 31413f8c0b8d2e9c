package main

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/sandeepkandula/drivesync/auth"
	"github.com/sandeepkandula/drivesync/config"
	"github.com/sandeepkandula/drivesync/sync"
)

// remoteFactory authenticates against the configured backend.
type remoteFactory func(ctx context.Context, cfg config.Config) (sync.Remote, error)

func newRemote(ctx context.Context, cfg config.Config) (sync.Remote, error) {
	if cfg.Backend == config.BackendS3 {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsLoadOptions(cfg)...)
		if err != nil {
			return nil, errors.Wrap(err, "load AWS config")
		}
		return sync.NewS3Remote(
			s3.NewFromConfig(awsCfg),
			cfg.S3Bucket,
			types.StorageClass(cfg.S3StorageClass),
		), nil
	}

	svc, source, err := auth.NewDriveService(ctx, auth.Credentials{
		JSON:        cfg.CredentialsJSON,
		File:        cfg.CredentialsFile,
		Impersonate: cfg.Impersonate,
	})
	if err != nil {
		return nil, errors.Wrap(err, "authenticate")
	}
	log.WithField("source", source).Debug("Authenticated with Google")

	return sync.NewDriveRemote(svc, sync.DriveOptions{
		UseTrash: cfg.UseTrash,
		Retry:    cfg.Retry(),
		Log:      log.StandardLogger(),
	}), nil
}

// awsLoadOptions applies the region and the shared retry bound, counted in
// attempts by the AWS SDK.
func awsLoadOptions(cfg config.Config) []func(*awsconfig.LoadOptions) error {
	return []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithRetryMaxAttempts(int(cfg.MaxRetries) + 1),
	}
}
