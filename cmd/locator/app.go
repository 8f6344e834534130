package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/benmeehan/locator/internal/services"
	"github.com/benmeehan/locator/internal/settings"
	"github.com/benmeehan/locator/internal/utils"
	"github.com/benmeehan/locator/internal/workflow"
	"github.com/benmeehan/locator/pkg/file"
	"github.com/benmeehan/locator/pkg/kvstore"
	"github.com/benmeehan/locator/pkg/location"
	"github.com/benmeehan/locator/pkg/scheduler"
	"github.com/rs/zerolog"
)

// app holds the components shared by every command.
type app struct {
	config     *utils.Config
	logger     zerolog.Logger
	fileClient file.FileOperations
	provider   location.Provider
	scheduler  *scheduler.Scheduler
	workflow   *workflow.Workflow
}

func newApp(configPath string, logOut io.Writer) (*app, error) {
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(configPath, fileClient)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(config, logOut)
	if err != nil {
		return nil, err
	}

	if err := fileClient.EnsureDir(config.StateDir); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	kv, err := kvstore.NewFileStore(filepath.Join(config.StateDir, "store"), fileClient)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}

	provider, err := newProvider(config, logger)
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(scheduler.Config{
		RegistrationFile:  config.RegistrationFile(),
		PollInterval:      config.Background.PollInterval,
		TaskTimeout:       config.Background.TaskTimeout,
		Workers:           config.Background.Workers,
		BackgroundAllowed: config.Background.Enabled,
	}, fileClient, logger.With().Str("component", "scheduler").Logger())

	wf := workflow.New(
		workflow.Config{
			FixTimeout:  config.Location.FixTimeout,
			Task:        workflow.DefaultTaskOptions(),
			RunLockFile: config.RunLockFile(),
		},
		settings.NewStore(kv, logger.With().Str("component", "settings").Logger()),
		provider,
		services.NewReporter(config.Reporter.Timeout, logger.With().Str("component", "reporter").Logger()),
		sched,
		logger.With().Str("component", "workflow").Logger(),
	)

	return &app{
		config:     config,
		logger:     logger,
		fileClient: fileClient,
		provider:   provider,
		scheduler:  sched,
		workflow:   wf,
	}, nil
}

func newProvider(config *utils.Config, logger zerolog.Logger) (location.Provider, error) {
	mode, err := location.ParsePermissionMode(config.Location.Permission)
	if err != nil {
		return nil, err
	}

	var provider location.Provider
	switch config.Location.Provider {
	case utils.ProviderGPS:
		provider = location.NewDeviceSensorProvider(config.Location.GPS.Port, config.Location.GPS.BaudRate)
	case utils.ProviderGoogle:
		provider, err = location.NewGoogleGeolocationProvider(
			config.Location.Google.APIKey,
			config.Location.Google.ModemIndex,
			logger.With().Str("component", "geolocation").Logger(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Google Geolocation provider: %w", err)
		}
	case utils.ProviderStatic:
		provider = location.NewStaticProvider(
			config.Location.Static.Latitude,
			config.Location.Static.Longitude,
			config.Location.Static.Accuracy,
		)
	default:
		return nil, fmt.Errorf("unknown location provider %q", config.Location.Provider)
	}

	return location.WithPermissionMode(provider, mode), nil
}

func (a *app) Close() error {
	return a.provider.Close()
}
