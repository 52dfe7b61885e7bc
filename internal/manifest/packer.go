package manifest

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mcgarrah/speech-enhancement/internal/model"
)

// BuildOptions configures a packer run.
type BuildOptions struct {
	// Packer is the packer binary. Defaults to "packer" on PATH.
	Packer string

	// ValidateOnly stops after `packer validate`.
	ValidateOnly bool

	Stdout io.Writer
	Stderr io.Writer
}

// Build runs `packer validate` and then `packer build` on the template at
// path. Packer resolves the provisioner script relative to its working
// directory, so both commands run from the template's directory.
func Build(ctx context.Context, path string, opts BuildOptions) error {
	bin := opts.Packer
	if bin == "" {
		bin = "packer"
	}
	packer, err := exec.LookPath(bin)
	if err != nil {
		return model.WrapCLIError(model.ExitToolNotFound,
			fmt.Sprintf("%s not found, install Packer to build images", bin), err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve manifest path %s: %w", path, err)
	}

	if err := runPacker(ctx, packer, abs, opts, "validate"); err != nil {
		return err
	}
	if opts.ValidateOnly {
		return nil
	}
	return runPacker(ctx, packer, abs, opts, "build")
}

func runPacker(ctx context.Context, packer, path string, opts BuildOptions, subcommand string) error {
	args := []string{subcommand, filepath.Base(path)}

	// #nosec G204 - the binary and template path come from the CLI user
	cmd := exec.CommandContext(ctx, packer, args...)
	cmd.Dir = filepath.Dir(path)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := cmd.Run(); err != nil {
		code := model.ExitGeneralError
		if subcommand == "validate" {
			code = model.ExitManifestInvalid
		}
		return model.WrapCLIError(code,
			fmt.Sprintf("packer %s failed", strings.Join(args, " ")), err)
	}
	return nil
}
