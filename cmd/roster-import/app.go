// cmd/roster-import/app.go
package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classbridge/roster-import/pkg/audit"
	"github.com/classbridge/roster-import/pkg/config"
	"github.com/classbridge/roster-import/pkg/connector"
	"github.com/classbridge/roster-import/pkg/flags"
	"github.com/classbridge/roster-import/pkg/importer"
	"github.com/classbridge/roster-import/pkg/store"
	"github.com/classbridge/roster-import/pkg/unmatched"
)

// app wires configuration, connections, and pipeline components for one
// command invocation
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	postgres  *connector.PostgresConnector
	snowflake *connector.SnowflakeConnector

	entities      *store.PostgresStore
	auditRepo     *audit.PostgresRepository
	unmatchedRepo *unmatched.PostgresRepository
	flagRepo      *flags.PostgresRepository

	importer *importer.Importer
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	pg, err := connector.NewPostgresConnector(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if err := pg.Validate(); err != nil {
		pg.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, postgres: pg}

	a.entities, err = store.NewPostgresStore(pg.DB(), logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.auditRepo, err = audit.NewPostgresRepository(pg.DB(), logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.unmatchedRepo, err = unmatched.NewPostgresRepository(pg.DB(), logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.flagRepo, err = flags.NewPostgresRepository(pg.DB(), logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.importer = importer.New(a.entities, a.auditRepo, a.unmatchedRepo, a.flagRepo, logger)
	return a, nil
}

// openSnowflake connects to the export warehouse on demand
func (a *app) openSnowflake(ctx context.Context) (*connector.SnowflakeConnector, error) {
	if a.snowflake != nil {
		return a.snowflake, nil
	}
	sf, err := connector.NewConnectorFactory(a.cfg, a.logger).CreateSnowflakeConnector(ctx)
	if err != nil {
		return nil, err
	}
	if err := sf.Validate(); err != nil {
		sf.Close()
		return nil, err
	}
	a.snowflake = sf
	return sf, nil
}

func (a *app) Close() {
	if a.snowflake != nil {
		a.snowflake.Close()
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.LogFormat == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
