package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/forumkit/flarum-importer/internal/buildinfo"
	"github.com/forumkit/flarum-importer/internal/mapping"
	"github.com/forumkit/flarum-importer/internal/markup"
	"github.com/forumkit/flarum-importer/internal/target"
	"github.com/forumkit/flarum-importer/internal/target/entities"
)

// isolate resets viper and moves the test into an empty working directory.
func isolate(t *testing.T) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	return dir
}

func execute(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := RootCommand(buildinfo.NewContext("1.0.0", "", ""))
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "importer.yaml")
	content := "target:\n  type: sqlite\n  path: " + filepath.Join(dir, "discourse.db") + "\n" +
		"logging:\n  console:\n    enabled: false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestTranscodeCommand(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, "run <C><s>`</s>make build<e>`</e></C> first", "transcode")
	require.NoError(t, err)
	assert.Equal(t, "run `make build` first\n", out)
}

func TestTranscodeCommand_File(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "post.xml")
	input := `<r><SIZE size="3"><URL url="https://x.test">x</URL></SIZE></r>`
	require.NoError(t, os.WriteFile(path, []byte(input), 0o600))

	out, stderr, err := execute(t, "", "transcode", "--trace", path)
	require.NoError(t, err)
	assert.Equal(t, markup.Transcode(input)+"\n", out)
	assert.Contains(t, stderr, "--- style-tags")
	assert.Contains(t, stderr, "--- strip-tags")
}

func TestTranscodeCommand_MissingFile(t *testing.T) {
	dir := isolate(t)

	_, _, err := execute(t, "", "transcode", filepath.Join(dir, "missing.xml"))
	require.Error(t, err)
}

func TestStatusCommand(t *testing.T) {
	dir := isolate(t)
	config := writeConfig(t, dir)

	out, _, err := execute(t, "", "status", "--config", config)
	require.NoError(t, err)

	var report target.RunReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, entities.ImportStatusIdle, report.State)
	assert.Empty(t, report.Steps)
}

func TestStatusCommand_JSONWithMappings(t *testing.T) {
	dir := isolate(t)
	config := writeConfig(t, dir)

	manager, err := target.NewSQLiteManager(target.Config{Path: filepath.Join(dir, "discourse.db")})
	require.NoError(t, err)
	require.NoError(t, manager.Initialize())
	store := mapping.NewStore(manager.DB(), 0, nil)
	require.NoError(t, store.Put(context.Background(), mapping.KindUser, mapping.Key(7), 3))
	store.FlushCache()
	require.NoError(t, manager.Close())

	out, _, err := execute(t, "", "status", "--json", "--config", config)
	require.NoError(t, err)

	var report target.RunReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, int64(1), report.Mappings[string(mapping.KindUser)])
}

func TestStatusCommand_BadConfig(t *testing.T) {
	dir := isolate(t)

	_, _, err := execute(t, "", "status", "--config", filepath.Join(dir, "nope.yaml"))
	require.Error(t, err)
}

func TestVersionFlag(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, "", "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "1.0.0")
}
