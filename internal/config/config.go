// Package config loads the speechctl configuration file.
//
// The configuration is optional. Without a file, Default() reproduces the
// layout the training launch script has always assumed: the checkout in the
// current directory, a virtualenv in ./venv, requirements.txt, the
// wandb-login.sh helper and the "src" training module run in "prod" mode.
//
// A speechctl.yaml file can override any of these paths, and can override
// the region and instance type of the image build manifest.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mcgarrah/speech-enhancement/internal/model"
)

// DefaultFileName is the configuration file looked up in the working
// directory when --config is not given.
const DefaultFileName = "speechctl.yaml"

// Config is the root of speechctl.yaml.
type Config struct {
	Launch   Launch   `yaml:"launch"`
	Manifest Manifest `yaml:"manifest"`
}

// Launch describes where the training launch finds its collaborators.
// Relative paths are resolved against RepoDir.
type Launch struct {
	// RepoDir is the source checkout that gets pulled and used as the
	// working directory for every other step.
	RepoDir string `yaml:"repo_dir"`

	// VenvDir is the pre-existing Python virtual environment.
	VenvDir string `yaml:"venv_dir"`

	// Requirements is the dependency manifest passed to pip install -r.
	Requirements string `yaml:"requirements"`

	// LoginShell runs LoginScript. The helper is a shell script, so bash
	// is the default.
	LoginShell  string `yaml:"login_shell"`
	LoginScript string `yaml:"login_script"`

	// Module is the Python module run with `python -m`.
	Module string `yaml:"module"`

	// Mode is the single positional argument given to the training module.
	Mode string `yaml:"mode"`

	// EnvFile holds secrets such as WANDB_API_KEY. A missing file is not
	// an error.
	EnvFile string `yaml:"env_file"`

	// Remote is the git remote pulled before training.
	Remote string `yaml:"remote"`
}

// Manifest holds the settings of the image build manifest commands.
type Manifest struct {
	// Output is where `manifest render` writes the Packer template.
	Output string `yaml:"output"`

	// Region and InstanceType override the defaults of the builder.
	// Empty values keep the defaults.
	Region       string `yaml:"region"`
	InstanceType string `yaml:"instance_type"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Launch: Launch{
			RepoDir:      ".",
			VenvDir:      "venv",
			Requirements: "requirements.txt",
			LoginShell:   "bash",
			LoginScript:  "wandb-login.sh",
			Module:       "src",
			Mode:         model.DefaultMode,
			EnvFile:      ".env",
			Remote:       "origin",
		},
		Manifest: Manifest{
			Output: "packer.json",
		},
	}
}

// Load reads the configuration at path and merges it over Default().
//
// If path is empty, DefaultFileName is tried in the current directory and
// silently skipped when absent. An explicit path that does not exist is an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("failed to read config %s", path), err)
	}

	// Unmarshalling into the populated defaults only overwrites the keys
	// present in the file.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("failed to parse config %s", path), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("invalid config %s", path), err)
	}
	return cfg, nil
}

// Validate checks that every launch collaborator has a non-empty value.
func (c *Config) Validate() error {
	l := c.Launch
	required := []struct {
		key, value string
	}{
		{"launch.repo_dir", l.RepoDir},
		{"launch.venv_dir", l.VenvDir},
		{"launch.requirements", l.Requirements},
		{"launch.login_shell", l.LoginShell},
		{"launch.login_script", l.LoginScript},
		{"launch.module", l.Module},
		{"launch.remote", l.Remote},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s must not be empty", r.key)
		}
	}
	return model.ValidateMode(l.Mode)
}

// Resolve returns p relative to the repository directory, unless p is
// already absolute.
func (l Launch) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(l.RepoDir, p)
}

// LoadEnvFile reads KEY=VALUE pairs from the launch env file.
// A missing file yields an empty map.
func (l Launch) LoadEnvFile() (map[string]string, error) {
	if l.EnvFile == "" {
		return map[string]string{}, nil
	}
	path := l.Resolve(l.EnvFile)
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("failed to read env file %s", path), err)
	}
	return env, nil
}
