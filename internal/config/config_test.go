package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesOriginalDefaults(t *testing.T) {
	d := Default()
	require.Equal(t, Summary, d.Output.Verbosity)
	require.Equal(t, 3, d.RepoDiscovery.MaxDepth)
	require.Equal(t, []string{"node_modules", ".git", "target", "build"}, d.RepoDiscovery.IgnorePatterns)
	require.Equal(t, "info", d.Logging.Level)
}

func TestNewFallsBackToDefaultsWithNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { require.NoError(t, os.Chdir(cwd)) }()

	_, cfg, err := New(nil, "")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestNewReadsExplicitConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("default-user-org: acme\njobs: \"4\"\n"), 0644))

	_, cfg, err := New(nil, path)
	require.NoError(t, err)
	require.Equal(t, "acme", cfg.DefaultUserOrg)
	require.Equal(t, "4", cfg.Jobs)
	require.Equal(t, Summary, cfg.Output.Verbosity, "unset keys still fall back to defaults")
}

func TestNewFlagOverridesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gx.yml")
	require.NoError(t, os.WriteFile(path, []byte("default-user-org: from-file\n"), 0644))

	t.Setenv("GX_DEFAULT_USER_ORG", "from-env")

	cmd := &cobra.Command{Use: "create"}
	cmd.Flags().String("default-user-org", "from-flag", "")
	require.NoError(t, cmd.Flags().Set("default-user-org", "from-flag"))

	_, cfg, err := New(cmd, path)
	require.NoError(t, err)
	require.Equal(t, "from-flag", cfg.DefaultUserOrg, "an explicitly set flag beats env and file")
}

func TestNewEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gx.yml")
	require.NoError(t, os.WriteFile(path, []byte("default-user-org: from-file\n"), 0644))

	t.Setenv("GX_DEFAULT_USER_ORG", "from-env")

	_, cfg, err := New(nil, path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.DefaultUserOrg)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "foo"), ExpandHome("~/foo"))
	require.Equal(t, "/abs/path", ExpandHome("/abs/path"))
}

func TestExpandTokenPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	got := ExpandTokenPath("~/.config/github/tokens/{user_or_org}", "acme")
	require.Equal(t, filepath.Join(home, ".config", "github", "tokens", "acme"), got)
}

func TestWriteDefaultProducesReadableYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gx.yml")
	require.NoError(t, WriteDefault(path))

	_, cfg, err := New(nil, path)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}
