package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/logging"
	"github.com/JonMunkholm/sheetimport/internal/store"
)

// OptionsFromConfig maps the import and preview settings onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TempDir:         cfg.Import.TempDir,
		MaxFileSize:     cfg.Import.MaxFileSize,
		PreviewPageSize: cfg.Preview.PageSize,
		MaxPageSize:     cfg.Preview.MaxPageSize,
		ImageKeywords:   cfg.Import.ImageKeywords,
		MaxConcurrent:   cfg.Import.MaxConcurrent,
		MaxWait:         cfg.Import.MaxWaitTime,
	}
}

// NewServiceFromConfig connects every configured store and builds a
// Service over them. A store whose settings are empty stays unconfigured.
// If a store fails to open, the ones already opened are closed.
func NewServiceFromConfig(ctx context.Context, cfg *config.Config) (*Service, error) {
	var relational, document store.Manager
	logger := logging.FromContext(ctx)

	if cfg.Relational.Enabled() {
		rel, err := store.OpenRelational(ctx, store.RelationalOptions{
			Driver:          cfg.Relational.Driver,
			DSN:             cfg.Relational.URL,
			MaxConns:        cfg.Relational.MaxConns,
			MaxIdle:         cfg.Relational.MaxIdle,
			ConnMaxLifetime: cfg.Relational.MaxConnLifetime,
			ConnMaxIdleTime: cfg.Relational.MaxConnIdleTime,
			BatchSize:       cfg.Relational.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("open relational store: %w", err)
		}
		relational = rel
		logger.Info("relational store connected", "driver", rel.Driver(), "batch_size", rel.BatchSize())
	}

	if cfg.Document.Enabled() {
		doc, err := store.OpenDocument(ctx, store.DocumentOptions{
			URI:         cfg.Document.URI,
			Database:    cfg.Document.Database,
			Timeout:     cfg.Document.Timeout,
			MaxPoolSize: cfg.Document.MaxPoolSize,
			MinPoolSize: cfg.Document.MinPoolSize,
			BatchSize:   cfg.Document.BatchSize,
		})
		if err != nil {
			if relational != nil {
				_ = relational.Close(ctx)
			}
			return nil, fmt.Errorf("open document store: %w", err)
		}
		document = doc
		logger.Info("document store connected", "database", cfg.Document.Database, "batch_size", doc.BatchSize())
	}

	return NewService(relational, document, OptionsFromConfig(cfg)), nil
}
