// Package venv reproduces the effect of sourcing a Python virtualenv's
// bin/activate script.
//
// The launch sequence runs every command as a child process, so "activating"
// a virtualenv means computing the environment those children inherit:
// VIRTUAL_ENV points at the env, its bin directory leads PATH, and
// PYTHONHOME is removed.
package venv

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// Activation is the result of activating a virtualenv.
type Activation struct {
	// Dir is the absolute path of the virtualenv.
	Dir string

	// BinDir holds python, pip and console scripts.
	BinDir string

	// Env is the full child environment as KEY=VALUE pairs, sorted.
	Env []string
}

// Python returns the path of the virtualenv's interpreter.
func (a *Activation) Python() string {
	return filepath.Join(a.BinDir, executable("python"))
}

// Activate activates the virtualenv at dir on top of environ (usually
// os.Environ()). It fails if dir does not contain a Python interpreter.
func Activate(dir string, environ []string) (*Activation, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve virtualenv path %s: %w", dir, err)
	}

	binDir := filepath.Join(abs, binDirName())
	a := &Activation{Dir: abs, BinDir: binDir}

	if _, err := os.Stat(a.Python()); err != nil {
		return nil, fmt.Errorf("virtualenv %s has no interpreter at %s: %w", abs, a.Python(), err)
	}

	env := toMap(environ)
	delete(env, "PYTHONHOME")
	env["VIRTUAL_ENV"] = abs
	if path, ok := env["PATH"]; ok && path != "" {
		env["PATH"] = binDir + string(os.PathListSeparator) + path
	} else {
		env["PATH"] = binDir
	}

	a.Env = fromMap(env)
	return a, nil
}

// Merge returns environ with the given variables set, sorted. Later
// values win.
func Merge(environ []string, vars map[string]string) []string {
	env := toMap(environ)
	for k, v := range vars {
		env[k] = v
	}
	return fromMap(env)
}

func toMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		m[k] = v
	}
	return m
}

func fromMap(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func binDirName() string {
	if runtime.GOOS == "windows" {
		return "Scripts"
	}
	return "bin"
}

func executable(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}
