package docker

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/mcgarrah/speech-enhancement/internal/model"
)

// ExecSpec describes one command run inside the training container.
type ExecSpec struct {
	// Argv is the command and its arguments. It is not run through a shell.
	Argv []string

	// Env holds KEY=VALUE pairs added to the container's environment.
	Env []string

	// WorkingDir is the directory inside the container. Empty means the
	// container's default.
	WorkingDir string

	// Stdout and Stderr receive the demultiplexed command output.
	// Nil writers discard output.
	Stdout io.Writer
	Stderr io.Writer
}

// execOptions converts an ExecSpec into Docker exec options.
func execOptions(spec ExecSpec) container.ExecOptions {
	return container.ExecOptions{
		Cmd:          spec.Argv,
		Env:          spec.Env,
		WorkingDir:   spec.WorkingDir,
		AttachStdout: true,
		AttachStderr: true,
	}
}

// Exec runs spec inside containerID and waits for it to finish.
//
// The returned exit code is the command's exit status. A non-nil error
// means the exec could not be created or attached; a command that ran and
// failed returns its non-zero code with a nil error.
func Exec(ctx context.Context, c *Client, containerID string, spec ExecSpec) (int, error) {
	if len(spec.Argv) == 0 {
		return 0, fmt.Errorf("exec: empty command")
	}

	created, err := c.inner.ContainerExecCreate(ctx, containerID, execOptions(spec))
	if err != nil {
		return 0, model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create exec %q in container %s", strings.Join(spec.Argv, " "), containerID), err)
	}

	attached, err := c.inner.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return 0, model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to attach to exec in container %s", containerID), err)
	}
	defer attached.Close()

	stdout, stderr := spec.Stdout, spec.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	// Without a TTY the stream is multiplexed; StdCopy returns when the
	// command exits and the stream closes.
	if _, err := stdcopy.StdCopy(stdout, stderr, attached.Reader); err != nil {
		return 0, fmt.Errorf("failed to read exec output: %w", err)
	}

	inspect, err := c.inner.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return 0, model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to inspect exec in container %s", containerID), err)
	}
	return inspect.ExitCode, nil
}
