// train.go implements the "speechctl train" command.
//
// The train command runs the five launch steps in order: pull the
// checkout, activate the virtualenv, install requirements, log in to the
// metrics service and start training. The first failing step stops the
// launch and its exit code is returned.
//
// The steps run on the host by default. --container runs them inside the
// training container through the Docker exec API, and --dry-run only
// prints them.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcgarrah/speech-enhancement/internal/checkout"
	"github.com/mcgarrah/speech-enhancement/internal/config"
	"github.com/mcgarrah/speech-enhancement/internal/docker"
	"github.com/mcgarrah/speech-enhancement/internal/launch"
	"github.com/mcgarrah/speech-enhancement/internal/model"
)

// trainFlags holds the flag values for the train command.
// None of them changes which steps run or their arguments.
type trainFlags struct {
	dryRun    bool   // --dry-run: print the steps instead of running them
	container bool   // --container: run inside the training container
	name      string // --name: training container name (default: by label)
}

// NewTrainCommand creates the "train" cobra command.
func NewTrainCommand() *cobra.Command {
	flags := &trainFlags{}

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Pull, install and start a training run",
		Long: `Run the training launch sequence:

  git pull origin
  source venv/bin/activate
  pip install -r requirements.txt
  bash wandb-login.sh
  python -m src prod

Each step starts only after the previous one succeeded. Paths, the login
helper, the module and the mode come from speechctl.yaml; variables in the
env file are passed to every command, along with WANDB_RUN_ID.

Examples:
  speechctl train
  speechctl train --dry-run
  speechctl train --container --name trainer-gpu0
  speechctl train --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print the steps without running them")
	cmd.Flags().BoolVar(&flags.container, "container", false, "Run the steps inside the training container")
	cmd.Flags().StringVar(&flags.name, "name", "",
		fmt.Sprintf("Training container name (default: newest running container labelled %s=%s)",
			docker.LabelRole, docker.RoleTrainer))
	cmd.MarkFlagsMutuallyExclusive("dry-run", "container")

	return cmd
}

// runTrain is the main orchestration function for the train command.
func runTrain(ctx context.Context, out io.Writer, flags *trainFlags) error {
	if flags.name != "" && !flags.container {
		return model.NewCLIError(model.ExitGeneralError, "--name requires --container")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l := cfg.Launch

	// The env file lives on the host, so it is read before the checkout
	// path is switched to the container's.
	extraEnv, err := l.LoadEnvFile()
	if err != nil {
		return err
	}
	VerboseLog("Loaded %d variables from %s", len(extraEnv), l.Resolve(l.EnvFile))

	// Command output goes to stderr in JSON mode so stdout carries only
	// the report.
	stdout := out
	if IsJSONOutput() {
		stdout = os.Stderr
	}

	var executor launch.Executor
	switch {
	case flags.dryRun:
		executor = &launch.DryRunExecutor{Out: stdout}

	case flags.container:
		client, err := docker.NewClient()
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		if err := client.Ping(ctx); err != nil {
			return err
		}
		VerboseLog("Connected to Docker daemon")

		info, err := docker.FindTrainingContainer(ctx, client, flags.name)
		if err != nil {
			return err
		}
		if l, err = containerLaunch(l, *info); err != nil {
			return err
		}
		logger.Info("running in container", "name", info.Name, "id", shortID(info.ID), "dir", l.RepoDir)

		ex := launch.NewContainerExecutor(client, *info)
		ex.Stdout = stdout
		executor = ex

	default:
		ex := launch.NewHostExecutor()
		ex.Stdout = stdout
		ex.Logger = logger
		executor = ex
		logHead(l)
	}

	plan, err := launch.NewPlan(l, extraEnv)
	if err != nil {
		return err
	}
	VerboseLog("Run ID %s, extra variables: %s", plan.RunID, strings.Join(launch.EnvKeys(plan), ","))
	train, err := plan.Step(model.StepTrain)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "launch plan is incomplete", err)
	}
	logger.Info("launching", "run_id", plan.RunID, "mode", plan.Mode, "command", train.String())

	launcher := launch.NewLauncher(executor, logger)
	report, runErr := launcher.Run(ctx, plan)
	if report != nil {
		if err := printTrainResult(out, report); err != nil && runErr == nil {
			return err
		}
	}
	return runErr
}

// containerLaunch resolves the checkout path inside the container. An
// absolute launch.repo_dir is used as is; a relative one is joined to the
// path recorded in the container's repo-dir label. Without either there is
// no usable working directory for docker exec.
func containerLaunch(l config.Launch, info docker.ContainerInfo) (config.Launch, error) {
	switch {
	case path.IsAbs(l.RepoDir):
	case path.IsAbs(info.RepoDir()):
		l.RepoDir = path.Join(info.RepoDir(), l.RepoDir)
	default:
		return l, model.NewCLIError(model.ExitConfigError,
			fmt.Sprintf("container %s has no %s label; set an absolute launch.repo_dir", info.Name, docker.LabelRepoDir))
	}
	return l, nil
}

// logHead logs the checkout's current commit before it is pulled.
func logHead(l config.Launch) {
	m := checkout.NewManager(l.Remote)
	if !m.IsRepository(l.RepoDir) {
		return
	}
	head, err := m.Head(l.RepoDir)
	if err != nil {
		VerboseLog("Cannot read HEAD of %s: %v", l.RepoDir, err)
		return
	}
	VerboseLog("Checkout %s at %s (%s)", l.RepoDir, head.ShortCommit(), head.Branch)
}

// printTrainResult outputs the launch report in text or JSON format,
// depending on the global --json flag.
func printTrainResult(w io.Writer, report *model.LaunchReport) error {
	if IsJSONOutput() {
		return writeJSON(w, newTrainResultJSON(report))
	}
	return printTrainResultText(w, report)
}

// trainStepJSON is the JSON output structure for one executed step.
type trainStepJSON struct {
	Step       string `json:"step"`
	Command    string `json:"command,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
}

// trainResultJSON is the JSON output structure of the train command.
type trainResultJSON struct {
	RunID     string          `json:"runId"`
	Mode      string          `json:"mode"`
	Completed bool            `json:"completed"`
	Steps     []trainStepJSON `json:"steps"`
}

func newTrainResultJSON(report *model.LaunchReport) trainResultJSON {
	result := trainResultJSON{
		RunID:     report.RunID,
		Mode:      report.Mode,
		Completed: report.Completed(),
		// An empty slice prints as [] rather than null.
		Steps: make([]trainStepJSON, 0, len(report.Steps)),
	}
	for _, s := range report.Steps {
		entry := trainStepJSON{
			Step:       s.Kind.String(),
			Command:    s.Command,
			DurationMs: s.Duration().Milliseconds(),
		}
		if s.Err != nil {
			entry.Error = s.Err.Error()
		}
		result.Steps = append(result.Steps, entry)
	}
	return result
}

// printTrainResultText outputs the report as a table:
//
//	Run 3f0c... (mode prod)
//	STEP       STATUS   DURATION
//	pull       ok       1.2s
//	activate   ok       0s
//	install    failed   4.51s
func printTrainResultText(w io.Writer, report *model.LaunchReport) error {
	if _, err := fmt.Fprintf(w, "Run %s (mode %s)\n", report.RunID, report.Mode); err != nil {
		return err
	}
	fmt.Fprintf(w, "%-10s %-8s %s\n", "STEP", "STATUS", "DURATION")
	for _, s := range report.Steps {
		status := "ok"
		if !s.Succeeded() {
			status = "failed"
		}
		fmt.Fprintf(w, "%-10s %-8s %s\n", s.Kind, status, FormatDuration(s.Duration()))
	}
	if report.Completed() {
		_, err := fmt.Fprintln(w, "Training finished.")
		return err
	}
	return nil
}

// FormatDuration rounds d for display: whole milliseconds below a second,
// hundredths of a second below a minute, whole seconds above.
//
// Example:
//
//	1234567 * time.Microsecond → "1.23s"
//	90 * time.Second           → "1m30s"
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(10 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

// shortID truncates a container ID to the 12 characters docker prints.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
