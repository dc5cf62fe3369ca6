// Package conf loads importer settings from the config file, .env and the environment.
package conf

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/forumkit/flarum-importer/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings contains all configuration options for the importer.
type Settings struct {
	Debug bool `yaml:"debug"`

	Source  SourceSettings       `yaml:"source"`  // Flarum database
	Target  TargetSettings       `yaml:"target"`  // Discourse-shaped target store
	Import  ImportSettings       `yaml:"import"`  // batching and pacing
	Avatar  AvatarSettings       `yaml:"avatar"`  // where avatar files are read from
	Logging logger.LoggingConfig `yaml:"logging"` // log outputs
	Sentry  SentrySettings       `yaml:"sentry"`  // error telemetry
	Metrics MetricsSettings      `yaml:"metrics"` // prometheus and progress endpoint
	Notify  NotifySettings       `yaml:"notify"`  // run completion notices
}

// SourceSettings describes the Flarum MySQL database.
type SourceSettings struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Database    string        `yaml:"database"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	TablePrefix string        `yaml:"tableprefix"` // Flarum's optional table prefix, e.g. "flarum_"
	Timeout     time.Duration `yaml:"timeout"`     // connect/read timeout
}

// TargetSettings selects the target store.
type TargetSettings struct {
	Type          string        `yaml:"type"`          // sqlite, mysql or postgres
	Path          string        `yaml:"path"`          // sqlite database file
	DSN           string        `yaml:"dsn"`           // mysql or postgres connection string
	UploadsDir    string        `yaml:"uploadsdir"`    // where imported avatar uploads are stored
	SlowThreshold time.Duration `yaml:"slowthreshold"` // queries slower than this are logged
}

// ImportSettings controls the batches loop.
type ImportSettings struct {
	BatchSize           int           `yaml:"batchsize"`
	MaxBatchesPerSecond float64       `yaml:"maxbatchespersecond"` // 0 disables pacing
	MappingCacheTTL     time.Duration `yaml:"mappingcachettl"`
	StaleRunAfter       time.Duration `yaml:"stalerunafter"` // 0 only takes over crashed runs with --force
	SkipAvatars         bool          `yaml:"skipavatars"`
}

// AvatarSettings selects where avatar files are fetched from.
type AvatarSettings struct {
	Type       string        `yaml:"type"` // local, sftp, ftp or http
	Dir        string        `yaml:"dir"`  // local directory or remote base path
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	KeyFile    string        `yaml:"keyfile"`    // private key for sftp
	KnownHosts string        `yaml:"knownhosts"` // known_hosts file for sftp; empty skips host key checks
	BaseURL    string        `yaml:"baseurl"`    // http source
	Timeout    time.Duration `yaml:"timeout"`
	MaxSize    int64         `yaml:"maxsize"` // bytes; larger avatars are ignored
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	Enabled     bool    `yaml:"enabled"`
	DSN         string  `yaml:"dsn"`
	Environment string  `yaml:"environment"`
	SampleRate  float64 `yaml:"samplerate"`
}

// MetricsSettings configures the metrics and progress HTTP endpoint.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// NotifySettings configures shoutrrr notifications.
type NotifySettings struct {
	URLs      []string `yaml:"urls"`
	OnSuccess bool     `yaml:"onsuccess"`
	OnFailure bool     `yaml:"onfailure"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads .env, the config file and environment variables into Settings.
// An empty configFile searches the default config paths.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := bindEnvVars(); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// GetSettings returns the most recently loaded settings
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// loadDotEnv loads .env from the working directory. Existing environment
// variables win over .env entries.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("error loading .env: %w", err)
}

func initViper(configFile string) error {
	setDefaultConfig()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	for _, path := range GetDefaultConfigPaths() {
		viper.AddConfigPath(path)
	}

	err := viper.ReadInConfig()
	if err == nil {
		return nil
	}
	var configFileNotFoundError viper.ConfigFileNotFoundError
	if !errors.As(err, &configFileNotFoundError) {
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	// No config on disk: fall back to the embedded defaults.
	return viper.ReadConfig(bytes.NewReader(DefaultConfig()))
}

// DefaultConfig returns the embedded default config.yaml.
func DefaultConfig() []byte {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		panic(fmt.Sprintf("embedded config.yaml missing: %v", err))
	}
	return data
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "flarum-importer"))
	}
	return append(paths, "/etc/flarum-importer")
}
