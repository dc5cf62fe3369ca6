package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_Getters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ctx       *Context
		version   string
		buildDate string
		commit    string
	}{
		{
			name:      "nil context",
			ctx:       nil,
			version:   UnknownValue,
			buildDate: UnknownValue,
			commit:    UnknownValue,
		},
		{
			name:      "empty values",
			ctx:       NewContext("", "", ""),
			version:   UnknownValue,
			buildDate: UnknownValue,
			commit:    UnknownValue,
		},
		{
			name:      "pre-release version",
			ctx:       NewContext("1.0.0-beta.1", "2026-01-01", "abc1234"),
			version:   "1.0.0-beta.1",
			buildDate: "2026-01-01",
			commit:    "abc1234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.ctx.GetVersion())
			assert.Equal(t, tt.buildDate, tt.ctx.GetBuildDate())
			assert.Equal(t, tt.commit, tt.ctx.GetCommit())
		})
	}
}

func TestContext_String(t *testing.T) {
	t.Parallel()

	var info BuildInfo = NewContext("0.3.0", "2026-02-10", "deadbee")
	assert.Equal(t, "0.3.0", info.GetVersion())
	assert.Equal(t, "0.3.0 (commit deadbee, built 2026-02-10)", NewContext("0.3.0", "2026-02-10", "deadbee").String())
	assert.Equal(t, "unknown (commit unknown, built unknown)", (*Context)(nil).String())
}
