package venv

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeVenv creates a directory that looks like a virtualenv: a bin/
// directory with an (empty) python executable.
func makeVenv(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("virtualenv layout differs on windows")
	}

	dir := t.TempDir()
	bin := filepath.Join(dir, "bin")
	require.NoError(t, os.MkdirAll(bin, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "python"), []byte("#!/bin/sh\n"), 0755))
	return dir
}

func envValue(env []string, key string) (string, bool) {
	for _, kv := range env {
		if len(kv) > len(key) && kv[:len(key)+1] == key+"=" {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

func TestActivate(t *testing.T) {
	dir := makeVenv(t)

	a, err := Activate(dir, []string{
		"PATH=/usr/bin:/bin",
		"PYTHONHOME=/usr/lib/python3",
		"HOME=/home/train",
	})
	require.NoError(t, err)

	assert.Equal(t, dir, a.Dir)
	assert.Equal(t, filepath.Join(dir, "bin", "python"), a.Python())

	path, ok := envValue(a.Env, "PATH")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "bin")+":/usr/bin:/bin", path)

	venvDir, ok := envValue(a.Env, "VIRTUAL_ENV")
	require.True(t, ok)
	assert.Equal(t, dir, venvDir)

	_, ok = envValue(a.Env, "PYTHONHOME")
	assert.False(t, ok, "PYTHONHOME must be unset by activation")

	home, ok := envValue(a.Env, "HOME")
	require.True(t, ok)
	assert.Equal(t, "/home/train", home)
}

func TestActivate_NoPath(t *testing.T) {
	dir := makeVenv(t)

	a, err := Activate(dir, nil)
	require.NoError(t, err)

	path, ok := envValue(a.Env, "PATH")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "bin"), path)
}

func TestActivate_MissingInterpreter(t *testing.T) {
	_, err := Activate(t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no interpreter")
}

func TestMerge(t *testing.T) {
	env := Merge([]string{"A=1", "B=2", "malformed"}, map[string]string{"B": "3", "C": "4"})
	assert.Equal(t, []string{"A=1", "B=3", "C=4"}, env)
}
