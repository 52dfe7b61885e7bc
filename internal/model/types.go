package model

import (
	"fmt"
	"regexp"
	"time"
)

// StepKind identifies one step of the training launch sequence.
// The sequence always runs in this order:
//
//	pull → activate → install → login → train
//
// There is no branching: each step runs only after the previous one
// succeeded, and the first failure ends the launch.
type StepKind string

const (
	// StepPull updates the source checkout from its remote.
	StepPull StepKind = "pull"

	// StepActivate activates the Python virtual environment. It produces
	// environment variables that every later step inherits.
	StepActivate StepKind = "activate"

	// StepInstall installs the dependency manifest into the virtualenv.
	StepInstall StepKind = "install"

	// StepLogin runs the metrics service login helper.
	StepLogin StepKind = "login"

	// StepTrain invokes the training module with the mode literal.
	StepTrain StepKind = "train"
)

// StepOrder is the fixed order in which launch steps execute.
var StepOrder = []StepKind{StepPull, StepActivate, StepInstall, StepLogin, StepTrain}

// String returns the string representation of StepKind.
func (k StepKind) String() string {
	return string(k)
}

// IsValid checks whether the StepKind value is one of the launch steps.
func (k StepKind) IsValid() bool {
	switch k {
	case StepPull, StepActivate, StepInstall, StepLogin, StepTrain:
		return true
	default:
		return false
	}
}

// DefaultMode is the environment literal passed to the training module.
const DefaultMode = "prod"

// modeRegex restricts the mode literal to a single shell-safe word so it is
// always forwarded as exactly one positional argument.
var modeRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidateMode checks that the training mode is a single lowercase word
// such as "prod" or "dev".
func ValidateMode(mode string) error {
	if mode == "" {
		return fmt.Errorf("training mode must not be empty")
	}
	if !modeRegex.MatchString(mode) {
		return fmt.Errorf("invalid training mode %q: must be a single lowercase word", mode)
	}
	return nil
}

// StepResult records the outcome of a single launch step.
type StepResult struct {
	// Kind is the step that ran.
	Kind StepKind `json:"step"`

	// Command is the command line that was executed, if the step runs one.
	// Pull and activate run in-process and leave this empty.
	Command string `json:"command,omitempty"`

	// StartedAt and FinishedAt bracket the execution of the step.
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	// Err is the failure returned by the step, if any.
	Err error `json:"-"`
}

// Duration returns how long the step took.
func (r StepResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the step completed without error.
func (r StepResult) Succeeded() bool {
	return r.Err == nil
}

// LaunchReport summarizes one run of the training launch sequence.
type LaunchReport struct {
	// RunID uniquely identifies this launch. It is exported to the
	// training process so metrics land in a run with the same identity.
	RunID string `json:"runId"`

	// Mode is the environment literal forwarded to the training module.
	Mode string `json:"mode"`

	// Steps holds one result per step that was attempted, in order.
	// Steps after a failure are absent.
	Steps []StepResult `json:"steps"`
}

// Failed returns the first failed step result, or nil if every attempted
// step succeeded.
func (r *LaunchReport) Failed() *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Err != nil {
			return &r.Steps[i]
		}
	}
	return nil
}

// Completed reports whether all five steps ran and succeeded.
func (r *LaunchReport) Completed() bool {
	return len(r.Steps) == len(StepOrder) && r.Failed() == nil
}

// ExitCode defines the CLI exit codes. These codes allow scripts and CI
// systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates the launcher configuration could not be
	// loaded or is invalid (missing virtualenv, bad YAML, bad mode).
	ExitConfigError ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible
	// or the training container could not be found.
	ExitDockerNotRunning ExitCode = 3

	// ExitManifestInvalid indicates the image build manifest failed to
	// parse or validate.
	ExitManifestInvalid ExitCode = 4

	// ExitGitError indicates the checkout pull failed.
	ExitGitError ExitCode = 5

	// ExitStepFailed indicates a launch step command exited non-zero.
	ExitStepFailed ExitCode = 6

	// ExitToolNotFound indicates an external tool (packer, docker) is not
	// installed or not on PATH.
	ExitToolNotFound ExitCode = 7
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
