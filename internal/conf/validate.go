// conf/validate.go

package conf

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Target store types
const (
	TargetSQLite   = "sqlite"
	TargetMySQL    = "mysql"
	TargetPostgres = "postgres"
)

// Avatar source types
const (
	AvatarLocal = "local"
	AvatarSFTP  = "sftp"
	AvatarFTP   = "ftp"
	AvatarHTTP  = "http"
)

var (
	targetTypes = []string{TargetSQLite, TargetMySQL, TargetPostgres}
	avatarTypes = []string{AvatarLocal, AvatarSFTP, AvatarFTP, AvatarHTTP}
)

// tablePrefixRe limits the prefix to characters safe in unquoted identifiers.
var tablePrefixRe = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

func isValidTargetType(t string) bool { return slices.Contains(targetTypes, t) }
func isValidAvatarType(t string) bool { return slices.Contains(avatarTypes, t) }

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, validate := range []func(*Settings) error{
		validateSourceSettings,
		validateTargetSettings,
		validateImportSettings,
		validateAvatarSettings,
		validateAmbientSettings,
	} {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateSourceSettings(s *Settings) error {
	var errs []string
	if s.Source.Host == "" {
		errs = append(errs, "source host is required")
	}
	if s.Source.Port < 1 || s.Source.Port > 65535 {
		errs = append(errs, fmt.Sprintf("source port %d out of range", s.Source.Port))
	}
	if s.Source.Database == "" {
		errs = append(errs, "source database is required")
	}
	if !tablePrefixRe.MatchString(s.Source.TablePrefix) {
		errs = append(errs, fmt.Sprintf("source table prefix %q may only contain letters, digits and underscores", s.Source.TablePrefix))
	}
	return joinErrs("source", errs)
}

func validateTargetSettings(s *Settings) error {
	var errs []string
	switch s.Target.Type {
	case TargetSQLite:
		if s.Target.Path == "" {
			errs = append(errs, "sqlite target requires a path")
		}
	case TargetMySQL, TargetPostgres:
		if s.Target.DSN == "" {
			errs = append(errs, fmt.Sprintf("%s target requires a dsn", s.Target.Type))
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown target type %q, expected one of %s", s.Target.Type, strings.Join(targetTypes, ", ")))
	}
	if s.Target.UploadsDir == "" {
		errs = append(errs, "uploads directory is required")
	}
	return joinErrs("target", errs)
}

func validateImportSettings(s *Settings) error {
	var errs []string
	if s.Import.BatchSize <= 0 {
		errs = append(errs, fmt.Sprintf("batch size must be positive, got %d", s.Import.BatchSize))
	}
	if s.Import.MaxBatchesPerSecond < 0 {
		errs = append(errs, "max batches per second cannot be negative")
	}
	return joinErrs("import", errs)
}

func validateAvatarSettings(s *Settings) error {
	if s.Import.SkipAvatars {
		return nil
	}
	var errs []string
	switch s.Avatar.Type {
	case AvatarLocal:
		if s.Avatar.Dir == "" {
			errs = append(errs, "local avatar source requires a directory")
		}
	case AvatarSFTP, AvatarFTP:
		if s.Avatar.Host == "" {
			errs = append(errs, fmt.Sprintf("%s avatar source requires a host", s.Avatar.Type))
		}
	case AvatarHTTP:
		if s.Avatar.BaseURL == "" {
			errs = append(errs, "http avatar source requires a base url")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown avatar source %q, expected one of %s", s.Avatar.Type, strings.Join(avatarTypes, ", ")))
	}
	if s.Avatar.MaxSize <= 0 {
		errs = append(errs, "avatar max size must be positive")
	}
	return joinErrs("avatar", errs)
}

func validateAmbientSettings(s *Settings) error {
	var errs []string
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		errs = append(errs, "sentry is enabled but no dsn is set")
	}
	if s.Sentry.SampleRate < 0 || s.Sentry.SampleRate > 1 {
		errs = append(errs, "sentry sample rate must be between 0 and 1")
	}
	if s.Metrics.Enabled && s.Metrics.Listen == "" {
		errs = append(errs, "metrics are enabled but no listen address is set")
	}
	return joinErrs("ambient", errs)
}

func joinErrs(section string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s settings: %s", section, strings.Join(errs, ", "))
}
