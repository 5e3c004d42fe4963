package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	cmd := NewVersionCommand("1.2.3")
	cmd.SetOut(&buf)

	require.NoError(t, cmd.Execute())

	got := buf.String()
	assert.Contains(t, got, "Cytops v1.2.3")
	assert.Contains(t, got, "Sales Prediction Pipeline")
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	cmd := NewInitCommand()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{dir})

	require.NoError(t, cmd.Execute())

	cfg, err := os.ReadFile(filepath.Join(dir, "cytops.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(cfg), "raw_path: data/raw/events.tsv")
	assert.Contains(t, string(cfg), "type: duckdb")

	gitignore, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(gitignore), ".cytops/")

	for _, d := range []string{"data/raw", "artifacts"} {
		info, err := os.Stat(filepath.Join(dir, d))
		require.NoError(t, err, d)
		assert.True(t, info.IsDir(), d)
	}

	assert.Contains(t, buf.String(), "Initialized Cytops project")
}

func TestInitCommand_ExistingConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cytops.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("environment: prod\n"), 0o644))

	cmd := NewInitCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "already exists")

	// The existing config is untouched.
	content, readErr := os.ReadFile(cfgPath)
	require.NoError(t, readErr)
	assert.Equal(t, "environment: prod\n", string(content))
}

func TestInitCommand_Force(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cytops.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("environment: prod\n"), 0o644))

	cmd := NewInitCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{dir, "--force"})

	require.NoError(t, cmd.Execute())

	content, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "raw_path: data/raw/events.tsv")
}

func TestInitCommand_KeepsGitignore(t *testing.T) {
	dir := t.TempDir()
	gitignorePath := filepath.Join(dir, ".gitignore")
	require.NoError(t, os.WriteFile(gitignorePath, []byte("vendor/\n"), 0o644))

	cmd := NewInitCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{dir})

	require.NoError(t, cmd.Execute())

	content, err := os.ReadFile(gitignorePath)
	require.NoError(t, err)
	assert.Equal(t, "vendor/\n", string(content), "an existing .gitignore is preserved")
}

func TestSplitSelection(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"ingest", []string{"ingest"}},
		{"ingest,features", []string{"ingest", "features"}},
		{" ingest , features ", []string{"ingest", "features"}},
		{"ingest,,features,", []string{"ingest", "features"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitSelection(tt.in), tt.in)
	}
}
