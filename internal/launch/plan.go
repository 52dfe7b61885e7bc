// Package launch runs the training launch sequence.
//
// A launch is five steps executed strictly in order:
//
//	pull      update the checkout from its remote
//	activate  activate the Python virtualenv
//	install   pip install -r <requirements>
//	login     run the metrics service login helper
//	train     python -m <module> <mode>
//
// Every step runs unconditionally once the previous one succeeded. The
// first failure stops the launch and nothing is retried, which is exactly
// what the shell does for a script run with `set -e`.
//
// Where the steps run is decided by an Executor: on the host, inside a
// training container, or nowhere at all (dry run).
package launch

import (
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"

	"github.com/mcgarrah/speech-enhancement/internal/config"
	"github.com/mcgarrah/speech-enhancement/internal/model"
)

// RunIDEnv is exported to every command after activation. The metrics
// client picks it up as the run identifier.
const RunIDEnv = "WANDB_RUN_ID"

// Step is one entry of a launch plan.
type Step struct {
	Kind model.StepKind

	// Argv is the command the step stands for. Pull and activate run
	// in-process, so their Argv is only used for display and scripts.
	Argv []string
}

// String renders the step's command line.
func (s Step) String() string {
	return strings.Join(s.Argv, " ")
}

// Plan is a fully resolved launch.
type Plan struct {
	// RunID identifies the launch. It comes from WANDB_RUN_ID in the env
	// file when set, otherwise a fresh UUID.
	RunID string

	// Mode is the environment literal passed to the training module.
	Mode string

	// Dir is the checkout directory. Every step runs from here.
	Dir string

	// VenvDir is the virtualenv, relative to Dir unless absolute.
	VenvDir string

	// Remote is the git remote pulled by the first step.
	Remote string

	// Env is added on top of the activated environment for the install,
	// login and train steps.
	Env map[string]string

	// Steps holds the five steps in execution order.
	Steps []Step
}

// NewPlan builds the launch plan from the launch configuration. extraEnv
// (usually the contents of the env file) is passed to every command.
func NewPlan(l config.Launch, extraEnv map[string]string) (*Plan, error) {
	if err := model.ValidateMode(l.Mode); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, "invalid launch mode", err)
	}

	env := make(map[string]string, len(extraEnv)+1)
	maps.Copy(env, extraEnv)

	runID := env[RunIDEnv]
	if runID == "" {
		runID = uuid.NewString()
		env[RunIDEnv] = runID
	}

	p := &Plan{
		RunID:   runID,
		Mode:    l.Mode,
		Dir:     l.RepoDir,
		VenvDir: l.VenvDir,
		Remote:  l.Remote,
		Env:     env,
	}
	p.Steps = []Step{
		{Kind: model.StepPull, Argv: []string{"git", "pull", l.Remote}},
		{Kind: model.StepActivate, Argv: []string{"source", activateScript(l.VenvDir)}},
		{Kind: model.StepInstall, Argv: []string{"pip", "install", "-r", l.Requirements}},
		{Kind: model.StepLogin, Argv: []string{l.LoginShell, l.LoginScript}},
		{Kind: model.StepTrain, Argv: []string{"python", "-m", l.Module, l.Mode}},
	}
	return p, nil
}

// Step returns the plan's step of the given kind.
func (p *Plan) Step(kind model.StepKind) (Step, error) {
	for _, s := range p.Steps {
		if s.Kind == kind {
			return s, nil
		}
	}
	return Step{}, fmt.Errorf("plan has no %s step", kind)
}

func activateScript(venvDir string) string {
	return strings.TrimSuffix(venvDir, "/") + "/bin/activate"
}
