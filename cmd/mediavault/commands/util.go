package commands

import (
	"context"
	"fmt"

	"github.com/mediavault/mediavault/internal/logger"
	"github.com/mediavault/mediavault/pkg/config"
	"github.com/mediavault/mediavault/pkg/reconcile"
	"github.com/mediavault/mediavault/pkg/store/blob"
	"github.com/mediavault/mediavault/pkg/store/relational"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// openStores connects both store adapters from configuration. The caller is
// responsible for closing the relational store.
func openStores(ctx context.Context, cfg *config.Config) (*blob.S3Store, *relational.GORMStore, error) {
	client, err := blob.NewS3ClientFromConfig(ctx,
		cfg.Blob.Endpoint,
		cfg.Blob.Region,
		cfg.Blob.AccessKeyID,
		cfg.Blob.SecretAccessKey,
		cfg.Blob.ForcePathStyle,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	blobStore, err := blob.NewS3Store(ctx, blob.S3Config{
		Client:    client,
		Bucket:    cfg.Blob.Bucket,
		KeyPrefix: cfg.Blob.KeyPrefix,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	relStore, err := relational.New(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	return blobStore, relStore, nil
}

// buildEngine wires the reconciliation engine from configuration.
func buildEngine(ctx context.Context, cfg *config.Config) (*reconcile.Engine, *blob.S3Store, *relational.GORMStore, error) {
	blobStore, relStore, err := openStores(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	engine := reconcile.New(blobStore, relStore, cfg.Reconcile)
	return engine, blobStore, relStore, nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
