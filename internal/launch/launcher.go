package launch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mcgarrah/speech-enhancement/internal/model"
	"github.com/mcgarrah/speech-enhancement/internal/venv"
)

// Command is a process the executor runs for the install, login and train
// steps.
type Command struct {
	Argv []string
	Env  []string
	Dir  string
}

// Executor runs launch steps somewhere.
type Executor interface {
	// Pull updates the checkout at dir from remote.
	Pull(ctx context.Context, dir, remote string) error

	// Activate returns the environment of an activated virtualenv.
	Activate(ctx context.Context, dir, venvDir string) ([]string, error)

	// Exec runs a command to completion.
	Exec(ctx context.Context, cmd Command) error
}

// Launcher executes launch plans.
type Launcher struct {
	Executor Executor
	Logger   *log.Logger

	// Now is the clock used for step timestamps. Defaults to time.Now.
	Now func() time.Time
}

// NewLauncher creates a Launcher for the given executor.
func NewLauncher(ex Executor, logger *log.Logger) *Launcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Launcher{Executor: ex, Logger: logger, Now: time.Now}
}

// Run executes plan step by step. The report lists every step that was
// attempted; on failure the returned error is the failing step's error
// and later steps are absent from the report.
func (l *Launcher) Run(ctx context.Context, plan *Plan) (*model.LaunchReport, error) {
	report := &model.LaunchReport{RunID: plan.RunID, Mode: plan.Mode}
	logger := l.Logger.With("run", plan.RunID)

	var env []string
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return report, model.WrapCLIError(model.ExitGeneralError, "launch cancelled", err)
		}

		result := model.StepResult{Kind: step.Kind, StartedAt: l.Now()}
		logger.Info("starting step", "step", step.Kind, "cmd", step.String())

		var err error
		switch step.Kind {
		case model.StepPull:
			err = l.Executor.Pull(ctx, plan.Dir, plan.Remote)
		case model.StepActivate:
			env, err = l.Executor.Activate(ctx, plan.Dir, plan.VenvDir)
			if err == nil {
				env = venv.Merge(env, plan.Env)
			}
		default:
			result.Command = step.String()
			err = l.Executor.Exec(ctx, Command{
				Argv: slices.Clone(step.Argv),
				Env:  env,
				Dir:  plan.Dir,
			})
		}

		result.FinishedAt = l.Now()
		result.Err = err
		report.Steps = append(report.Steps, result)

		if err != nil {
			logger.Error("step failed", "step", step.Kind, "err", err)
			return report, stepError(step, err)
		}
		logger.Debug("step finished", "step", step.Kind, "took", result.Duration())
	}

	logger.Info("launch finished", "mode", plan.Mode)
	return report, nil
}

// stepError keeps CLIErrors raised by executors (git, docker) and maps
// everything else to ExitStepFailed.
func stepError(step Step, err error) error {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return err
	}
	return model.WrapCLIError(model.ExitStepFailed, fmt.Sprintf("step %s failed", step.Kind), err)
}

// EnvKeys returns the sorted names of the variables a plan adds to the
// activated environment. Values are not returned since they may be secrets.
func EnvKeys(plan *Plan) []string {
	return slices.Sorted(maps.Keys(plan.Env))
}
