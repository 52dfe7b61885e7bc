// cli_test.go contains tests for the output helpers and for
// the commands that need neither Docker nor Packer.
package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcgarrah/speech-enhancement/internal/config"
	"github.com/mcgarrah/speech-enhancement/internal/docker"
	"github.com/mcgarrah/speech-enhancement/internal/manifest"
	"github.com/mcgarrah/speech-enhancement/internal/model"
)

// runCLI executes the root command with args in a fresh temp directory and
// returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := runCLIStderr(t, args...)
	return out, err
}

// runCLIStderr is runCLI that also returns what was logged to stderr.
func runCLIStderr(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Cleanup(func() {
		jsonOutput, verbose, configPath = false, false, ""
	})

	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func exitCode(t *testing.T, err error) model.ExitCode {
	t.Helper()
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr), "expected CLIError, got %v", err)
	return cliErr.Code
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{name: "zero", d: 0, want: "0s"},
		{name: "milliseconds", d: 1500 * time.Microsecond, want: "2ms"},
		{name: "seconds", d: 1234567 * time.Microsecond, want: "1.23s"},
		{name: "minutes", d: 90*time.Second + 400*time.Millisecond, want: "1m30s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.d))
		})
	}
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123456789ab", shortID("0123456789abcdef0123"))
	assert.Equal(t, "abc", shortID("abc"))
}

func sampleReport() *model.LaunchReport {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &model.LaunchReport{
		RunID: "run-1",
		Mode:  "prod",
		Steps: []model.StepResult{
			{Kind: model.StepPull, StartedAt: start, FinishedAt: start.Add(1200 * time.Millisecond)},
			{Kind: model.StepActivate, StartedAt: start, FinishedAt: start},
			{
				Kind:       model.StepInstall,
				Command:    "pip install -r requirements.txt",
				StartedAt:  start,
				FinishedAt: start.Add(3 * time.Second),
				Err:        errors.New("exit status 1"),
			},
		},
	}
}

func TestPrintTrainResultText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTrainResultText(&buf, sampleReport()))

	want := "Run run-1 (mode prod)\n" +
		"STEP       STATUS   DURATION\n" +
		"pull       ok       1.2s\n" +
		"activate   ok       0s\n" +
		"install    failed   3s\n"
	assert.Equal(t, want, buf.String())
}

func TestNewTrainResultJSON(t *testing.T) {
	result := newTrainResultJSON(sampleReport())

	assert.Equal(t, "run-1", result.RunID)
	assert.False(t, result.Completed)
	require.Len(t, result.Steps, 3)
	assert.Equal(t, "pull", result.Steps[0].Step)
	assert.Equal(t, int64(1200), result.Steps[0].DurationMs)
	assert.Empty(t, result.Steps[0].Error)
	assert.Equal(t, "exit status 1", result.Steps[2].Error)
	assert.Equal(t, "pip install -r requirements.txt", result.Steps[2].Command)
}

func TestNewTrainResultJSON_EmptySteps(t *testing.T) {
	data, err := json.Marshal(newTrainResultJSON(&model.LaunchReport{RunID: "r", Mode: "prod"}))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"steps":[]`)
}

func TestContainerLaunch(t *testing.T) {
	labelled := docker.ContainerInfo{Name: "trainer", Labels: map[string]string{docker.LabelRepoDir: "/workspace/speech"}}
	unlabelled := docker.ContainerInfo{Name: "trainer"}

	tests := []struct {
		name    string
		repoDir string
		info    docker.ContainerInfo
		want    string
	}{
		{name: "default dir uses label", repoDir: ".", info: labelled, want: "/workspace/speech"},
		{name: "relative dir joins label", repoDir: "models/se", info: labelled, want: "/workspace/speech/models/se"},
		{name: "absolute dir wins over label", repoDir: "/srv/checkout", info: labelled, want: "/srv/checkout"},
		{name: "absolute dir without label", repoDir: "/srv/checkout", info: unlabelled, want: "/srv/checkout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := config.Default().Launch
			l.RepoDir = tt.repoDir

			got, err := containerLaunch(l, tt.info)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.RepoDir)
		})
	}
}

// TestContainerLaunch_Unlabelled checks that a relative checkout path is
// refused when the container does not record where its checkout lives.
func TestContainerLaunch_Unlabelled(t *testing.T) {
	_, err := containerLaunch(config.Default().Launch, docker.ContainerInfo{Name: "trainer"})
	require.Error(t, err)
	assert.Equal(t, model.ExitConfigError, exitCode(t, err))
	assert.Contains(t, err.Error(), docker.LabelRepoDir)
}

func TestValidationFailure(t *testing.T) {
	err := validationFailure("packer.json", []manifest.ValidationError{
		{Field: "builders", Message: "expected exactly one builder, found 2"},
		{Field: "provisioners", Message: "expected exactly one provisioner, found 0"},
	})
	assert.Equal(t, model.ExitManifestInvalid, exitCode(t, err))
	assert.Contains(t, err.Error(), "packer.json is invalid: builders: expected exactly one builder, found 2 (and 1 more)")
}

func TestPrintError(t *testing.T) {
	t.Cleanup(func() { jsonOutput = false })

	var buf bytes.Buffer
	printError(&buf, "step install failed", errors.New("exit status 1"))
	assert.Equal(t, "Error: step install failed: exit status 1\n", buf.String())

	jsonOutput = true
	buf.Reset()
	printError(&buf, "step install failed", errors.New("exit status 1"))

	var got map[string]map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "step install failed", got["error"]["message"])
	assert.Equal(t, "exit status 1", got["error"]["detail"])
}

func TestScriptCommand_Default(t *testing.T) {
	out, err := runCLI(t, "script")
	require.NoError(t, err)
	assert.Equal(t, "#!/usr/bin/env bash\n"+
		"set -e\n"+
		"git pull origin\n"+
		"source venv/bin/activate\n"+
		"pip install -r requirements.txt\n"+
		"bash wandb-login.sh\n"+
		"python -m src prod\n", out)
}

func TestScriptCommand_Check(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "train.sh")
	require.NoError(t, os.WriteFile(good, []byte("#!/bin/bash\ngit pull\n. venv/bin/activate\n"+
		"pip install -r requirements.txt\nbash wandb-login.sh\npython -m src prod\n"), 0644))

	out, err := runCLI(t, "script", "--check", good)
	require.NoError(t, err)
	assert.Contains(t, out, "matches the launch sequence")

	bad := filepath.Join(dir, "bad.sh")
	require.NoError(t, os.WriteFile(bad, []byte("git pull\npython -m src prod\n"), 0644))

	out, err = runCLI(t, "script", "--check", bad)
	require.Error(t, err)
	assert.Equal(t, model.ExitGeneralError, exitCode(t, err))
	assert.Contains(t, out, "differs from the launch sequence")
}

func TestTrainCommand_DryRun(t *testing.T) {
	out, err := runCLI(t, "train", "--dry-run")
	require.NoError(t, err)

	assert.Contains(t, out, "[.] git pull origin\n")
	assert.Contains(t, out, "[.] pip install -r requirements.txt\n")
	assert.Contains(t, out, "[.] bash wandb-login.sh\n")
	assert.Contains(t, out, "[.] python -m src prod\n")
	assert.Contains(t, out, "Training finished.")
}

func TestTrainCommand_LogsTrainingCommand(t *testing.T) {
	_, stderr, err := runCLIStderr(t, "train", "--dry-run")
	require.NoError(t, err)

	assert.Contains(t, stderr, "launching")
	assert.Contains(t, stderr, "mode=prod")
	assert.Contains(t, stderr, "python -m src prod")
}

func TestTrainCommand_NameWithoutContainer(t *testing.T) {
	_, err := runCLI(t, "train", "--name", "trainer")
	require.Error(t, err)
	assert.Equal(t, model.ExitGeneralError, exitCode(t, err))
}

func TestTrainCommand_MissingConfig(t *testing.T) {
	_, err := runCLI(t, "--config", "missing.yaml", "train", "--dry-run")
	require.Error(t, err)
	assert.Equal(t, model.ExitConfigError, exitCode(t, err))
}

func TestManifestRender_Stdout(t *testing.T) {
	out, err := runCLI(t, "manifest", "render", "--output", "-")
	require.NoError(t, err)

	golden, err := os.ReadFile(filepath.Join(mustGetwdAtStart(t), "..", "manifest", "testdata", "packer.golden.json"))
	require.NoError(t, err)
	assert.Equal(t, string(golden), out)
}

func TestManifestRender_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "packer.json")

	_, err := runCLI(t, "manifest", "render", "-o", path, "--region", "eu-west-1")
	require.NoError(t, err)

	m, err := manifest.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"builders[0].region"}, manifest.Diff(manifest.Default(), m))
}

func TestManifestValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	require.NoError(t, manifest.Write(good, manifest.Default()))

	out, err := runCLI(t, "manifest", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid (image name: speech-enhancement ")

	m := manifest.Default()
	m.Builders[0].SourceAMIFilter.MostRecent = false
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, manifest.Write(bad, m))

	out, err = runCLI(t, "manifest", "validate", bad)
	require.Error(t, err)
	assert.Equal(t, model.ExitManifestInvalid, exitCode(t, err))
	assert.Contains(t, out, "builders[0].source_ami_filter.most_recent")
}

func TestManifestDiff(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "packer.json")
	require.NoError(t, manifest.Write(path,
		manifest.Apply(manifest.Default(), manifest.Overrides{InstanceType: "p3.2xlarge"})))

	out, err := runCLI(t, "manifest", "diff", "-", path)
	require.NoError(t, err)
	assert.Equal(t, "builders[0].instance_type\n", out)

	out, err = runCLI(t, "manifest", "diff", "-", "-")
	require.NoError(t, err)
	assert.Equal(t, "No differences.\n", out)
}

func TestImageBuild_PackerMissing(t *testing.T) {
	_, err := runCLI(t, "image", "build", "--packer", filepath.Join(t.TempDir(), "no-packer"))
	require.Error(t, err)
	assert.Equal(t, model.ExitToolNotFound, exitCode(t, err))
}

// startDir is the package directory, captured before any test changes the
// working directory.
var startDir, _ = os.Getwd()

func mustGetwdAtStart(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, startDir)
	return startDir
}
