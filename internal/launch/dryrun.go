package launch

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// DryRunExecutor prints what each step would do without running anything.
type DryRunExecutor struct {
	Out io.Writer
}

// Pull prints the pull.
func (d *DryRunExecutor) Pull(_ context.Context, dir, remote string) error {
	_, err := fmt.Fprintf(d.Out, "[%s] git pull %s\n", dir, remote)
	return err
}

// Activate prints the activation and returns the variables it would set.
// The virtualenv is not checked.
func (d *DryRunExecutor) Activate(_ context.Context, dir, venvDir string) ([]string, error) {
	if !filepath.IsAbs(venvDir) {
		venvDir = filepath.Join(dir, venvDir)
	}
	if _, err := fmt.Fprintf(d.Out, "[%s] source %s\n", dir, filepath.Join(venvDir, "bin", "activate")); err != nil {
		return nil, err
	}
	return []string{
		"PATH=" + filepath.Join(venvDir, "bin"),
		"VIRTUAL_ENV=" + venvDir,
	}, nil
}

// Exec prints the command line.
func (d *DryRunExecutor) Exec(_ context.Context, cmd Command) error {
	_, err := fmt.Fprintf(d.Out, "[%s] %s\n", cmd.Dir, strings.Join(cmd.Argv, " "))
	return err
}
