// config.go: settings struct and functions to load and save the application configuration.
package conf

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"github.com/zoosonics/sawcall-go/internal/errors"
	"gopkg.in/yaml.v3"
)

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled bool   // true to enable this log
	Path    string // path to log file
}

// MainSettings contains top-level application settings.
type MainSettings struct {
	Name     string    // application instance name
	Facility string    // facility tag attached to registered recordings
	Log      LogConfig // operational log settings
}

// SchedulerSettings contains settings for the background job scheduler.
type SchedulerSettings struct {
	PollInterval     int // seconds between scheduler cycles
	IdleCycles       int // consecutive idle cycles before a retry sweep is considered
	RetryCooldown    int // seconds between retry sweeps
	RetryWindowDays  int // only failures newer than this many days are requeued
	RetryBatchSize   int // maximum failed recordings requeued per sweep
	StopTimeout      int // seconds to wait for the worker to exit on Stop
	ProcessingJitter int // seconds of delay between batch-drained files
}

// ProcessingSettings contains settings for the processing pipeline.
type ProcessingSettings struct {
	TempPath           string   // directory for temporary artifacts created during a run
	ContentionRetries  int      // bounded retry attempts for transient database contention
	ContentionDelay    int      // base backoff delay in milliseconds between contention retries
	SpeciesPrefixes    []string // known species-name prefixes stripped by the filename parser
	SpectrogramEnabled bool     // request spectrogram artifacts after detection
	ReportEnabled      bool     // request report artifacts after detection
}

// SQLiteSettings contains SQLite database configuration.
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings contains MySQL database configuration.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Database string
	Host     string
	Port     string
}

// OutputSettings contains settings for storage backends.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// Settings is the root configuration struct.
type Settings struct {
	Debug      bool // true to enable debug mode
	Main       MainSettings
	Scheduler  SchedulerSettings
	Processing ProcessingSettings
	Output     OutputSettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error validating settings: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// defined in defaults.go
	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig materializes the defaults from defaults.go into a
// config file at the first default config path.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return fmt.Errorf("error unmarshaling default config: %w", err)
	}
	if err := SaveYAMLConfig(configPath, settings); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// SaveYAMLConfig updates the YAML configuration file with new settings.
// It writes to a temporary file first to keep the write atomic.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary config file: %w", err)
	}
	tempName := tempFile.Name()

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		os.Remove(tempName)
		return fmt.Errorf("error writing temporary config file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("error closing temporary config file: %w", err)
	}

	if err := os.Rename(tempName, configPath); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the default config file search paths.
func GetDefaultConfigPaths() ([]string, error) {
	var paths []string

	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "sawcall-go"))
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "sawcall-go"))
	}

	// current working directory is always a valid fallback
	paths = append(paths, ".")

	if len(paths) == 0 {
		return nil, fmt.Errorf("no valid config paths found")
	}
	return paths, nil
}
