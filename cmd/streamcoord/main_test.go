package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
metrics_addr: ""
log_level: error
workers: ["h1:6700", "h2:6700"]
pipelines:
  - name: traffic
    topology:
      count: {tasks: 4, executors: 2}
`

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, context.Background(), "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "streamcoord "))
}

func TestMigrateGenerate(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, context.Background(), "migrate", "generate",
		"--adapter", "sqlite", "--output", dir, "--filename", "init.sql", "--schema", "coord")
	require.NoError(t, err)
	assert.Contains(t, out, "Generated sqlite migration")

	content, err := os.ReadFile(filepath.Join(dir, "init.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "coord_pipelines")
	assert.Contains(t, string(content), "coord_task_assignments")
}

func TestMigrateGenerate_UnsupportedAdapter(t *testing.T) {
	_, err := execute(t, context.Background(), "migrate", "generate", "--adapter", "oracle", "--output", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported adapter 'oracle'")
}

func TestMigrateUp_RequiresDatabase(t *testing.T) {
	_, err := execute(t, context.Background(), "migrate", "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url is required")
}

func TestSubmit_StartThenGrow(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "streamcoord.yaml", testConfig)
	commandsPath := writeFile(t, dir, "commands.json", `{"kind": "sequence", "children": [
		{"kind": "pipeline", "pipeline": "traffic", "status": "start"},
		{"kind": "parallelism_change", "pipeline": "traffic", "requests": {"count": {"executorDiff": 1}}}
	]}`)
	signalsPath := filepath.Join(dir, "signals.jsonl")

	out, err := execute(t, context.Background(), "submit", commandsPath,
		"--config", configPath, "--signals-out", signalsPath)
	require.NoError(t, err)

	var report submitOutput
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "sequence", report.Kind)
	assert.Equal(t, "none", report.Code)
	assert.Equal(t, 2, report.Executed)
	assert.Equal(t, 0, report.Failed)

	signals, err := os.ReadFile(signalsPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(signals)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"kind":"pipeline"`)
	assert.Contains(t, lines[1], `"kind":"parallelism"`)
}

func TestSubmit_FailureReported(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "streamcoord.yaml", testConfig)
	commandsPath := writeFile(t, dir, "commands.json",
		`{"kind": "parallelism_change", "pipeline": "ghost", "requests": {"count": {"executorDiff": 1}}}`)

	out, err := execute(t, context.Background(), "submit", commandsPath,
		"--config", configPath, "--signals-out", filepath.Join(dir, "signals.jsonl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command failed")

	var report submitOutput
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "unknown_pipeline", report.Code)
	assert.Equal(t, "validation", report.Category)
	assert.Equal(t, 1, report.Failed)
}

func TestSubmit_InvalidCommandFile(t *testing.T) {
	dir := t.TempDir()
	commandsPath := writeFile(t, dir, "commands.json", `{"kind": "teleport"}`)

	_, err := execute(t, context.Background(), "submit", commandsPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command kind")
}

func TestServe_StopsWithContext(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "streamcoord.yaml", testConfig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := execute(t, ctx, "serve", "--config", configPath, "--signals-out", filepath.Join(dir, "signals.jsonl"))
	assert.NoError(t, err)
}

func TestRootOptions_LogLevelOverride(t *testing.T) {
	opts := &rootOptions{logLevel: "debug"}

	cfg, err := opts.load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}
