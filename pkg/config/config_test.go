package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, root, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, Dir), 0755))
	require.NoError(t, os.WriteFile(Path(root), []byte(body), 0644))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 1500*time.Millisecond, cfg.Daemon.Interval)
	assert.Contains(t, cfg.Allowlist(), "npm")
}

func TestLoad_OverlaysFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
model: local-model
shellAllowlist: [make, npm]
actions:
  shell:
    allow: [npm, go]
    timeout: 2m
patch:
  mode: whole-file-only
planner:
  maxRetries: 3
  checkPaths: [web]
daemon:
  interval: 250ms
git:
  autoCommit: true
logging:
  verbosity: debug
`)

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "local-model", cfg.Model)
	assert.Equal(t, 2*time.Minute, cfg.Actions.Shell.Timeout)
	assert.Equal(t, PatchModeWholeFileOnly, cfg.Patch.Mode)
	assert.Equal(t, 3, cfg.MaxRetries())
	assert.Equal(t, []string{"web"}, cfg.Planner.CheckPaths)
	assert.Equal(t, 250*time.Millisecond, cfg.Daemon.Interval)
	assert.True(t, cfg.Git.AutoCommit)
	assert.Equal(t, "debug", cfg.Logging.Verbosity)
	assert.True(t, cfg.DefaultCheck.RunBuild, "unset fields keep defaults")
	assert.Equal(t, "product.spec.yml", cfg.Planner.SpecFile)

	assert.Equal(t, []string{"npm", "go", "make"}, cfg.Allowlist())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "actions: [", "failed to parse"},
		{"bad patch mode", "patch:\n  mode: fuzzy\n", "invalid patch mode"},
		{"bad verbosity", "logging:\n  verbosity: loud\n", "invalid logging verbosity"},
		{"negative timeout", "actions:\n  shell:\n    timeout: -1s\n", "cannot be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeConfig(t, root, tt.body)
			_, err := Load(root)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Actions.Shell.Timeout = 90 * time.Second
	cfg.ShellAllowlist = []string{"make"}

	require.NoError(t, cfg.Save(root))

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestMaxRetriesFloor(t *testing.T) {
	cfg := Default()
	cfg.Planner.MaxRetries = 0
	assert.Equal(t, 1, cfg.MaxRetries())
}

func TestAllowlist_EmptyWhenUnset(t *testing.T) {
	cfg := &Config{}
	assert.Empty(t, cfg.Allowlist())
}
