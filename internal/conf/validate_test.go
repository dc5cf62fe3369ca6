package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Source: SourceSettings{Host: "localhost", Port: 3306, Database: "flarum"},
		Target: TargetSettings{Type: TargetSQLite, Path: "data/discourse.db", UploadsDir: "data/uploads"},
		Import: ImportSettings{BatchSize: DefaultBatchSize},
		Avatar: AvatarSettings{Type: AvatarLocal, Dir: DefaultAvatarUploadDir, MaxSize: DefaultMaxAvatarSize},
		Sentry: SentrySettings{SampleRate: 1},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"zero batch size", func(s *Settings) { s.Import.BatchSize = 0 }, "batch size must be positive"},
		{"negative pacing", func(s *Settings) { s.Import.MaxBatchesPerSecond = -1 }, "cannot be negative"},
		{"unknown target", func(s *Settings) { s.Target.Type = "oracle" }, `unknown target type "oracle"`},
		{"mysql without dsn", func(s *Settings) { s.Target.Type = TargetMySQL }, "mysql target requires a dsn"},
		{"missing source db", func(s *Settings) { s.Source.Database = "" }, "source database is required"},
		{"unsafe table prefix", func(s *Settings) { s.Source.TablePrefix = "x; DROP" }, "may only contain"},
		{"bad source port", func(s *Settings) { s.Source.Port = 0 }, "source port 0 out of range"},
		{"unknown avatar source", func(s *Settings) { s.Avatar.Type = "s3" }, `unknown avatar source "s3"`},
		{"sftp without host", func(s *Settings) { s.Avatar.Type = AvatarSFTP }, "sftp avatar source requires a host"},
		{"http without base url", func(s *Settings) { s.Avatar.Type = AvatarHTTP }, "http avatar source requires a base url"},
		{"avatar checks skipped", func(s *Settings) { s.Import.SkipAvatars = true; s.Avatar.Type = "s3" }, ""},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "no dsn"},
		{"metrics without listen", func(s *Settings) { s.Metrics.Enabled = true }, "no listen address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)

			err := ValidateSettings(s)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.NotEmpty(t, ve.Errors)
		})
	}
}

func TestEnvValidators(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateEnvPositiveInt("10"))
	assert.Error(t, validateEnvPositiveInt("0"))
	assert.Error(t, validateEnvPositiveInt("x"))

	assert.NoError(t, validateEnvPort("3306"))
	assert.Error(t, validateEnvPort("70000"))

	assert.NoError(t, validateEnvHost("db.internal"))
	assert.Error(t, validateEnvHost("db internal"))

	assert.NoError(t, validateEnvTargetType(TargetPostgres))
	assert.Error(t, validateEnvTargetType("oracle"))

	assert.NoError(t, validateEnvAvatarType(AvatarFTP))
	assert.Error(t, validateEnvAvatarType("s3"))

	assert.NoError(t, validateEnvURL("https://key@sentry.test/1"))
	assert.Error(t, validateEnvURL("not a url"))

	assert.NoError(t, validateEnvListenAddr(":9464"))
	assert.Error(t, validateEnvListenAddr("9464"))

	assert.NoError(t, validateEnvBool("true"))
	assert.Error(t, validateEnvBool("yes please"))
}
