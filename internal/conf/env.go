// env.go - environment variable bindings and validation
package conf

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation.
// The FLARUM_* names match what existing deployment scripts already export.
func getEnvBindings() []envBinding {
	return []envBinding{
		// Source database
		{"source.host", "FLARUM_HOST", validateEnvHost},
		{"source.port", "FLARUM_PORT", validateEnvPort},
		{"source.database", "FLARUM_DB", nil},
		{"source.username", "FLARUM_USER", nil},
		{"source.password", "FLARUM_PW", nil},
		{"source.tableprefix", "FLARUM_TABLE_PREFIX", nil},

		// Import
		{"import.batchsize", "BATCH_SIZE", validateEnvPositiveInt},
		{"import.skipavatars", "SKIP_AVATARS", validateEnvBool},
		{"avatar.dir", "AVATAR_UPLOADS_DIR", nil},
		{"avatar.type", "AVATAR_SOURCE", validateEnvAvatarType},

		// Target
		{"target.type", "TARGET_TYPE", validateEnvTargetType},
		{"target.path", "TARGET_PATH", nil},
		{"target.dsn", "TARGET_DSN", nil},
		{"target.uploadsdir", "TARGET_UPLOADS_DIR", nil},

		// Ambient
		{"debug", "IMPORTER_DEBUG", validateEnvBool},
		{"sentry.dsn", "SENTRY_DSN", validateEnvURL},
		{"notify.urls", "NOTIFY_URLS", nil},
		{"metrics.listen", "METRICS_LISTEN", validateEnvListenAddr},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n <= 0 {
		return fmt.Errorf("must be greater than 0")
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

func validateEnvHost(value string) error {
	if strings.ContainsAny(value, " /") {
		return fmt.Errorf("must be a hostname or IP address")
	}
	return nil
}

func validateEnvTargetType(value string) error {
	if !isValidTargetType(value) {
		return fmt.Errorf("must be one of %s", strings.Join(targetTypes, ", "))
	}
	return nil
}

func validateEnvAvatarType(value string) error {
	if !isValidAvatarType(value) {
		return fmt.Errorf("must be one of %s", strings.Join(avatarTypes, ", "))
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}

func validateEnvListenAddr(value string) error {
	if _, _, err := net.SplitHostPort(value); err != nil {
		return fmt.Errorf("must be host:port")
	}
	return nil
}
