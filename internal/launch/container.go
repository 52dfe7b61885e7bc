package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/mcgarrah/speech-enhancement/internal/docker"
	"github.com/mcgarrah/speech-enhancement/internal/model"
)

// containerPath is the PATH assumed inside the training container before
// activation. It matches the default of the Debian and Ubuntu base images.
const containerPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// ContainerExecutor runs the launch inside a running training container
// through the Docker exec API. Paths are container paths.
type ContainerExecutor struct {
	Client    *docker.Client
	Container docker.ContainerInfo

	Stdout io.Writer
	Stderr io.Writer
}

// NewContainerExecutor creates an executor for the given container that
// streams command output to the process's stdout and stderr.
func NewContainerExecutor(c *docker.Client, info docker.ContainerInfo) *ContainerExecutor {
	return &ContainerExecutor{Client: c, Container: info, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Pull runs `git pull` inside the container; the checkout there belongs to
// the container's filesystem, not the host's.
func (e *ContainerExecutor) Pull(ctx context.Context, dir, remote string) error {
	err := e.run(ctx, Command{Argv: []string{"git", "-C", dir, "pull", remote}, Dir: dir})
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return err
	}
	if err != nil {
		return model.WrapCLIError(model.ExitGitError, "git pull failed in container "+e.Container.Name, err)
	}
	return nil
}

// Activate checks that the virtualenv exists in the container and returns
// the environment activation would produce there.
func (e *ContainerExecutor) Activate(ctx context.Context, dir, venvDir string) ([]string, error) {
	venvDir = containerVenv(dir, venvDir)
	python := path.Join(venvDir, "bin", "python")

	if err := e.run(ctx, Command{Argv: []string{"test", "-x", python}, Dir: dir}); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("virtualenv %s has no interpreter in container %s", venvDir, e.Container.Name), err)
	}
	return containerActivation(venvDir), nil
}

// Exec runs cmd inside the container.
func (e *ContainerExecutor) Exec(ctx context.Context, cmd Command) error {
	return e.run(ctx, cmd)
}

// run executes cmd in the container. Docker only accepts an absolute
// working directory for exec.
func (e *ContainerExecutor) run(ctx context.Context, cmd Command) error {
	if !path.IsAbs(cmd.Dir) {
		return model.NewCLIError(model.ExitConfigError,
			fmt.Sprintf("container checkout path %q must be absolute", cmd.Dir))
	}
	code, err := docker.Exec(ctx, e.Client, e.Container.ID, docker.ExecSpec{
		Argv:       cmd.Argv,
		Env:        cmd.Env,
		WorkingDir: cmd.Dir,
		Stdout:     e.Stdout,
		Stderr:     e.Stderr,
	})
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("%s: exit status %d", strings.Join(cmd.Argv, " "), code)
	}
	return nil
}

// containerVenv resolves venvDir against the checkout with POSIX paths,
// whatever the host OS.
func containerVenv(dir, venvDir string) string {
	if path.IsAbs(venvDir) {
		return venvDir
	}
	return path.Join(dir, venvDir)
}

func containerActivation(venvDir string) []string {
	return []string{
		"PATH=" + path.Join(venvDir, "bin") + ":" + containerPath,
		"VIRTUAL_ENV=" + venvDir,
	}
}
