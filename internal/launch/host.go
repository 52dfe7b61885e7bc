package launch

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"

	"github.com/mcgarrah/speech-enhancement/internal/checkout"
	"github.com/mcgarrah/speech-enhancement/internal/model"
	"github.com/mcgarrah/speech-enhancement/internal/venv"
)

// HostExecutor runs the launch on the local machine.
type HostExecutor struct {
	// Environ is the base environment activation starts from.
	// Defaults to os.Environ().
	Environ []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Logger receives the outcome of the pull. Defaults to log.Default().
	Logger *log.Logger
}

// NewHostExecutor creates an executor wired to the process's stdio.
func NewHostExecutor() *HostExecutor {
	return &HostExecutor{
		Environ: os.Environ(),
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Logger:  log.Default(),
	}
}

// Pull updates the checkout with go-git and logs the commit it ends on.
func (h *HostExecutor) Pull(ctx context.Context, dir, remote string) error {
	result, err := checkout.NewManager(remote).Pull(ctx, dir)
	if err != nil {
		return err
	}

	logger := h.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Info("checkout pulled",
		"dir", dir,
		"branch", result.Head.Branch,
		"commit", result.Head.ShortCommit(),
		"updated", result.Updated)
	return nil
}

// Activate activates the virtualenv on top of the executor's environment.
func (h *HostExecutor) Activate(_ context.Context, dir, venvDir string) ([]string, error) {
	if !filepath.IsAbs(venvDir) {
		venvDir = filepath.Join(dir, venvDir)
	}
	a, err := venv.Activate(venvDir, h.Environ)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, "failed to activate virtualenv", err)
	}
	return a.Env, nil
}

// Exec runs cmd as a child process. The program is looked up in the PATH
// of cmd.Env, so an activated virtualenv's pip and python take precedence
// over the system ones.
func (h *HostExecutor) Exec(ctx context.Context, cmd Command) error {
	if len(cmd.Argv) == 0 {
		return fmt.Errorf("empty command")
	}

	dir, err := filepath.Abs(cmd.Dir)
	if err != nil {
		return fmt.Errorf("failed to resolve working directory %s: %w", cmd.Dir, err)
	}

	prog, err := interp.LookPathDir(dir, expand.ListEnviron(cmd.Env...), cmd.Argv[0])
	if err != nil {
		return model.WrapCLIError(model.ExitToolNotFound,
			fmt.Sprintf("%s not found in PATH", cmd.Argv[0]), err)
	}

	// #nosec G204 - argv comes from the launch configuration
	c := exec.CommandContext(ctx, prog, cmd.Argv[1:]...)
	c.Dir = dir
	c.Env = cmd.Env
	c.Stdin = h.Stdin
	c.Stdout = h.Stdout
	c.Stderr = h.Stderr

	if err := c.Run(); err != nil {
		return fmt.Errorf("%s: %w", strings.Join(cmd.Argv, " "), err)
	}
	return nil
}
