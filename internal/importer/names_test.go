package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUsername(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"alice", "alice"},
		{"Bob Müller", "Bob_Muller"},
		{"  spaced  out  ", "spaced_out"},
		{"Zoë.Ångström", "Zoe.Angstrom"},
		{"日本語", "user"},
		{"x", "x11"},
		{"__a__", "a11"},
		{"a very long username that keeps going", "a_very_long_username"},
		{"-dash-", "dash"},
		{"semi;colon", "semi_colon"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got := NormalizeUsername(tt.in)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, len(got), minUsernameLength)
			assert.LessOrEqual(t, len(got), maxUsernameLength)
		})
	}
}

func TestUniqueUsername(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	takenSet := func(names ...string) func(context.Context, string) (bool, error) {
		set := make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
		}
		return func(_ context.Context, name string) (bool, error) {
			return set[name], nil
		}
	}

	got, err := uniqueUsername(ctx, "alice", takenSet())
	require.NoError(t, err)
	assert.Equal(t, "alice", got)

	got, err = uniqueUsername(ctx, "alice", takenSet("alice", "alice1"))
	require.NoError(t, err)
	assert.Equal(t, "alice2", got)

	// The suffix replaces the tail of a name already at the length limit.
	long := "abcdefghijklmnopqrst"
	got, err = uniqueUsername(ctx, long, takenSet(long))
	require.NoError(t, err)
	assert.Equal(t, "abcdefghijklmnopqrs1", got)

	// Separators left at the end of a cut stem are dropped before the suffix.
	underscored := "abcdefghijklmnopqr_s"
	got, err = uniqueUsername(ctx, underscored, takenSet(underscored))
	require.NoError(t, err)
	assert.Equal(t, "abcdefghijklmnopqr1", got)

	got, err = uniqueUsername(ctx, underscored, takenSet(underscored, "abcdefghijklmnopqr1"))
	require.NoError(t, err)
	assert.Equal(t, "abcdefghijklmnopqr2", got)

	boom := errors.New("boom")
	_, err = uniqueUsername(ctx, "alice", func(context.Context, string) (bool, error) { return false, boom })
	require.ErrorIs(t, err, boom)

	_, err = uniqueUsername(ctx, "alice", func(context.Context, string) (bool, error) { return true, nil })
	require.Error(t, err)
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "general", Slugify("General"))
	assert.Equal(t, "help-support", Slugify("Help & Support"))
	assert.Equal(t, "cafe-creme", Slugify("  Café Crème! "))
	assert.Equal(t, "", Slugify("日本語"))
}
