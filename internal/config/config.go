// Package config loads and serves the dispatcher's runtime settings.
package config

import (
	"embed"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings holds every tunable of the dispatch layer.
type Settings struct {
	Debug bool // true to enable debug-level logging

	Main struct {
		Name string // node name, used to identify this dispatcher instance in logs
		Log  LogConfig
	}

	Queue struct {
		Backend          string // "durable" (bbolt) or "volatile" (tcp)
		DurablePath      string // directory holding the input.db/results.db bbolt files
		VolatileHost     string // host the volatile queue binds/dials
		PushPort         int    // port audio chunks are pushed to workers on
		PullPort         int    // port transcripts/errors are pulled from workers on
		ControlPort      int    // port worker status/control messages flow over
		HighWaterMark    int    // max in-flight messages before backpressure signals
		MaxQueueDepth    int    // max items the queue will hold before rejecting pushes
	}

	Tracker struct {
		MaxRetries       int           // max redelivery attempts before a message is marked failed
		MessageTimeout   time.Duration // time a message may sit "processing" before it's considered lost
		CheckInterval    time.Duration // how often the timeout sweep runs
		CleanupAge       time.Duration // age after which completed/failed entries are purged
		CleanupInterval  time.Duration // how often the cleanup sweep runs
	}

	Worker struct {
		Count             int           // number of worker processes to maintain
		BinaryPath        string        // path to the worker executable
		Args              []string      // extra arguments passed to each worker
		MaxRestarts       int           // restart attempts allowed before a worker slot is parked
		InitialBackoff    time.Duration // backoff before the first restart
		MaxBackoff        time.Duration // ceiling for exponential backoff
		HeartbeatInterval time.Duration // interval between worker heartbeat checks
		ResponseTimeout   time.Duration // max time to wait for a worker response
		StopTimeout       time.Duration // grace period before a SIGKILL on stop
	}

	Service struct {
		Name       string // service/process name used for status reporting
		PIDFile    string // path to the PID file written on start
		ListenHost string // host ServiceManager's status probe binds against
	}

	Audio struct {
		Device            string  // capture device identifier, empty for system default
		SampleRateHz      int     // target sample rate after resampling (16000 per the wire contract)
		Channels          int     // target channel count after folding (1, mono)
		ChunkDurationSecs float64 // length of each emitted audio chunk
		MinFinalChunkMs   int     // minimum duration for the last chunk of a stream
	}

	Observability struct {
		Enabled bool   // true to enable the Prometheus metrics endpoint
		Listen  string // address the metrics endpoint listens on
	}
}

// LogConfig defines the configuration for a log file.
type LogConfig struct {
	Enabled     bool
	Path        string
	Rotation    RotationType
	MaxSize     int64
	RotationDay time.Weekday
}

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file (falling back to viper defaults for
// missing keys) into a fresh Settings. Environment variables are not consulted.
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

	settingsInstance = settings
	return settings, nil
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

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createDefaultConfig(configPaths)
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config to the first default
// path and loads it.
func createDefaultConfig(configPaths []string) error {
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	return viper.ReadInConfig()
}

// getDefaultConfig reads the embedded default configuration.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("error reading embedded default config: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance, or nil if none is loaded.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, loading defaults on first call.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}
