package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcgarrah/speech-enhancement/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// TestDefault checks the defaults that match the train.sh launch script.
func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ".", cfg.Launch.RepoDir)
	assert.Equal(t, "venv", cfg.Launch.VenvDir)
	assert.Equal(t, "requirements.txt", cfg.Launch.Requirements)
	assert.Equal(t, "wandb-login.sh", cfg.Launch.LoginScript)
	assert.Equal(t, "src", cfg.Launch.Module)
	assert.Equal(t, "prod", cfg.Launch.Mode)
	assert.Equal(t, "packer.json", cfg.Manifest.Output)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "speechctl.yaml")
	writeFile(t, path, `
launch:
  repo_dir: /srv/speech
  venv_dir: .venv
manifest:
  region: eu-west-1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/speech", cfg.Launch.RepoDir)
	assert.Equal(t, ".venv", cfg.Launch.VenvDir)
	assert.Equal(t, "eu-west-1", cfg.Manifest.Region)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, "requirements.txt", cfg.Launch.Requirements)
	assert.Equal(t, "prod", cfg.Launch.Mode)
	assert.Equal(t, "packer.json", cfg.Manifest.Output)
}

func TestLoad_ExplicitMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitConfigError, cliErr.Code)
}

func TestLoad_ImplicitMissing(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speechctl.yaml")
	writeFile(t, path, "launch: [unterminated")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speechctl.yaml")
	writeFile(t, path, "launch:\n  mode: \"prod dev\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid training mode")
}

func TestValidate_EmptyField(t *testing.T) {
	cfg := Default()
	cfg.Launch.Requirements = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "launch.requirements")
}

func TestResolve(t *testing.T) {
	l := Launch{RepoDir: "/srv/speech"}
	assert.Equal(t, "/srv/speech/venv", l.Resolve("venv"))
	assert.Equal(t, "/opt/venv", l.Resolve("/opt/venv"))
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "WANDB_API_KEY=abc123\n# comment\nWANDB_ENTITY=speech\n")

	l := Default().Launch
	l.RepoDir = dir

	env, err := l.LoadEnvFile()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"WANDB_API_KEY": "abc123",
		"WANDB_ENTITY":  "speech",
	}, env)
}

func TestLoadEnvFile_Missing(t *testing.T) {
	l := Default().Launch
	l.RepoDir = t.TempDir()

	env, err := l.LoadEnvFile()
	require.NoError(t, err)
	assert.Empty(t, env)
}
