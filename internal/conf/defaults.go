// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultBatchSize       = 1000
	DefaultAvatarUploadDir = "/var/discourse/shared/standalone/import/data/"
	DefaultMaxAvatarSize   = 10 << 20
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("source.host", "localhost")
	viper.SetDefault("source.port", 3306)
	viper.SetDefault("source.database", "flarum")
	viper.SetDefault("source.username", "root")
	viper.SetDefault("source.password", "")
	viper.SetDefault("source.tableprefix", "")
	viper.SetDefault("source.timeout", 30*time.Second)

	viper.SetDefault("target.type", TargetSQLite)
	viper.SetDefault("target.path", "data/discourse.db")
	viper.SetDefault("target.dsn", "")
	viper.SetDefault("target.uploadsdir", "data/uploads")
	viper.SetDefault("target.slowthreshold", 500*time.Millisecond)

	viper.SetDefault("import.batchsize", DefaultBatchSize)
	viper.SetDefault("import.maxbatchespersecond", 0.0)
	viper.SetDefault("import.mappingcachettl", 30*time.Minute)
	viper.SetDefault("import.stalerunafter", 30*time.Minute)
	viper.SetDefault("import.skipavatars", false)

	viper.SetDefault("avatar.type", AvatarLocal)
	viper.SetDefault("avatar.dir", DefaultAvatarUploadDir)
	viper.SetDefault("avatar.port", 0)
	viper.SetDefault("avatar.timeout", 30*time.Second)
	viper.SetDefault("avatar.maxsize", DefaultMaxAvatarSize)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/import.log")
	viper.SetDefault("logging.file_output.level", "debug")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.environment", "production")
	viper.SetDefault("sentry.samplerate", 1.0)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", "127.0.0.1:9464")

	viper.SetDefault("notify.onsuccess", true)
	viper.SetDefault("notify.onfailure", true)
}
