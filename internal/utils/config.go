package utils

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/benmeehan/locator/pkg/file"
	"github.com/benmeehan/locator/pkg/location"
	"github.com/rs/zerolog"
)

// Location provider names accepted in configuration.
const (
	ProviderGPS    = "gps"
	ProviderGoogle = "google"
	ProviderStatic = "static"
)

// Config represents the structure of the configuration file.
type Config struct {
	StateDir string `yaml:"state_dir"` // Directory holding settings and task registrations

	Log struct {
		Level  string `yaml:"level"`  // zerolog level name
		Format string `yaml:"format"` // json or console
	} `yaml:"log"`

	Location struct {
		Provider   string        `yaml:"provider"`    // gps, google or static
		Permission string        `yaml:"permission"`  // prompt, granted or denied
		FixTimeout time.Duration `yaml:"fix_timeout"` // Bound on a single fix attempt

		GPS struct {
			Port     string `yaml:"port"`      // UNIX port where the GPS sensor is mounted
			BaudRate int    `yaml:"baud_rate"` // Baud rate for the GPS sensor
		} `yaml:"gps"`

		Google struct {
			APIKey     string `yaml:"api_key"`     // Google Maps API key
			ModemIndex int    `yaml:"modem_index"` // ModemManager index used for cell towers
		} `yaml:"google"`

		Static struct {
			Latitude  float64 `yaml:"latitude"`
			Longitude float64 `yaml:"longitude"`
			Accuracy  float64 `yaml:"accuracy"`
		} `yaml:"static"`
	} `yaml:"location"`

	Reporter struct {
		Timeout time.Duration `yaml:"timeout"` // Timeout for a single POST
	} `yaml:"reporter"`

	Background struct {
		Enabled      bool          `yaml:"enabled"`       // Allow background execution
		PollInterval time.Duration `yaml:"poll_interval"` // How often due tasks are checked
		TaskTimeout  time.Duration `yaml:"task_timeout"`  // Deadline of a background run
		Workers      int           `yaml:"workers"`       // Concurrent task runners
	} `yaml:"background"`

	Status struct {
		Enabled        bool          `yaml:"enabled"`         // Publish run outcomes over MQTT
		Broker         string        `yaml:"broker"`          // MQTT broker address
		ClientID       string        `yaml:"client_id"`       // MQTT client ID prefix
		CACertificate  string        `yaml:"ca_certificate"`  // Path to the CA certificate
		Topic          string        `yaml:"topic"`           // MQTT topic for outcomes
		QOS            int           `yaml:"qos"`             // MQTT QoS level for outcome messages
		PublishTimeout time.Duration `yaml:"publish_timeout"` // Wait for connect and publish acks
	} `yaml:"status"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	var config Config
	config.StateDir = "/var/lib/locator"
	config.Log.Level = "info"
	config.Log.Format = "json"
	config.Location.Provider = ProviderGPS
	config.Location.Permission = string(location.PermissionModePrompt)
	config.Location.FixTimeout = 30 * time.Second
	config.Location.GPS.Port = "/dev/ttyUSB0"
	config.Location.GPS.BaudRate = 9600
	config.Reporter.Timeout = 15 * time.Second
	config.Background.Enabled = true
	config.Background.PollInterval = 30 * time.Second
	config.Background.TaskTimeout = 25 * time.Second
	config.Background.Workers = 1
	config.Status.ClientID = "locator"
	config.Status.Topic = "locator/outcomes"
	config.Status.QOS = 1
	config.Status.PublishTimeout = 5 * time.Second
	return &config
}

// LoadConfig loads the YAML configuration from the specified file.
// A missing file yields DefaultConfig; fields left empty in the file take their defaults.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()

	exists, err := fileClient.IsFileExists(filename)
	if err != nil {
		return nil, err
	}
	if !exists {
		return config, nil
	}

	// Use the ReadYamlFile method from fileClient
	if err := fileClient.ReadYamlFile(filename, config); err != nil {
		return nil, err
	}
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	return config, nil
}

// RegistrationFile is where background task registrations are kept.
func (c *Config) RegistrationFile() string {
	return filepath.Join(c.StateDir, "tasks.json")
}

// RunLockFile guards against concurrent workflow runs from the agent and the CLI.
func (c *Config) RunLockFile() string {
	return filepath.Join(c.StateDir, "run.lock")
}

func (c *Config) applyDefaults() error {
	defaults := DefaultConfig()

	if c.StateDir == "" {
		c.StateDir = defaults.StateDir
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Location.Provider == "" {
		c.Location.Provider = defaults.Location.Provider
	}
	if c.Location.Permission == "" {
		c.Location.Permission = defaults.Location.Permission
	}
	if c.Location.FixTimeout <= 0 {
		c.Location.FixTimeout = defaults.Location.FixTimeout
	}
	if c.Location.GPS.BaudRate <= 0 {
		c.Location.GPS.BaudRate = defaults.Location.GPS.BaudRate
	}
	if c.Reporter.Timeout <= 0 {
		c.Reporter.Timeout = defaults.Reporter.Timeout
	}
	if c.Background.PollInterval <= 0 {
		c.Background.PollInterval = defaults.Background.PollInterval
	}
	if c.Background.TaskTimeout <= 0 {
		c.Background.TaskTimeout = defaults.Background.TaskTimeout
	}
	if c.Background.Workers <= 0 {
		c.Background.Workers = defaults.Background.Workers
	}
	if c.Status.ClientID == "" {
		c.Status.ClientID = defaults.Status.ClientID
	}
	if c.Status.Topic == "" {
		c.Status.Topic = defaults.Status.Topic
	}
	if c.Status.PublishTimeout <= 0 {
		c.Status.PublishTimeout = defaults.Status.PublishTimeout
	}

	switch c.Location.Provider {
	case ProviderGPS, ProviderGoogle, ProviderStatic:
	default:
		return fmt.Errorf("unknown location provider %q", c.Location.Provider)
	}
	if _, err := location.ParsePermissionMode(c.Location.Permission); err != nil {
		return err
	}
	if c.Status.Enabled && c.Status.Broker == "" {
		return errors.New("status.broker is required when status publishing is enabled")
	}
	return nil
}

// NewLogger builds the process logger from the log section.
func NewLogger(config *Config, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(config.Log.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", config.Log.Level, err)
	}

	var logger zerolog.Logger
	switch config.Log.Format {
	case "console":
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	case "json":
		logger = zerolog.New(out)
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", config.Log.Format)
	}
	return logger.Level(level).With().Timestamp().Logger(), nil
}
