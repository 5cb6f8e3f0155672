package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"
	"github.com/zulandar/intellifactory/internal/advisor"
	"github.com/zulandar/intellifactory/internal/config"
	"github.com/zulandar/intellifactory/internal/db"
	"github.com/zulandar/intellifactory/internal/events"
	"github.com/zulandar/intellifactory/internal/factory"
	"github.com/zulandar/intellifactory/internal/logging"
	"github.com/zulandar/intellifactory/internal/orchestration"
	"github.com/zulandar/intellifactory/internal/pipeline"
	"github.com/zulandar/intellifactory/internal/simulation"
	"gorm.io/gorm"
)

// app is the wired runtime shared by serve and agent commands.
type app struct {
	cfg   *config.Config
	log   logging.Logger
	db    *gorm.DB
	store *factory.Store
	hub   *events.Hub
	orch  *orchestration.Orchestrator
}

// loadConfig reads configPath. When the flag was left at its default and the
// file does not exist, defaults plus environment overrides are used.
func loadConfig(cmd *cobra.Command, configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err == nil {
		return cfg, nil
	}
	if !cmd.Flags().Changed("config") && errors.Is(err, fs.ErrNotExist) {
		return config.Parse(nil)
	}
	return nil, fmt.Errorf("load config: %w", err)
}

func connectFromConfig(cmd *cobra.Command, configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return nil, nil, err
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (logging.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
}

// buildApp loads config, connects to the database and wires the pipeline,
// engine and hub together.
func buildApp(cmd *cobra.Command, configPath string) (*app, error) {
	cfg, gormDB, err := connectFromConfig(cmd, configPath)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}
	client, err := advisor.New(cfg.Model)
	if err != nil {
		return nil, err
	}

	store := factory.NewStore(gormDB)
	hub := events.NewHub(cfg.Hub.BufferSize)
	policy := pipeline.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Pipeline.MaxAttempts
	policy.AttemptTimeout = cfg.Pipeline.AttemptTimeout

	orch, err := orchestration.New(orchestration.Opts{
		Store:    store,
		Pipeline: pipeline.New(client, store, hub, policy, logger),
		Engine:   simulation.NewEngine(store, hub, logger),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:   cfg,
		log:   logger,
		db:    gormDB,
		store: store,
		hub:   hub,
		orch:  orch,
	}, nil
}
