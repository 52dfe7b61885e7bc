// image.go implements the "speechctl image build" command.
//
// The build command renders (or loads) the Packer template, validates it
// locally, then runs `packer validate` and `packer build` from the
// template's directory so the provisioner script resolves next to it.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcgarrah/speech-enhancement/internal/manifest"
)

// NewImageCommand creates the "image" parent command.
func NewImageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Build the training machine image with Packer",
	}
	cmd.AddCommand(newImageBuildCommand())
	return cmd
}

// imageBuildFlags holds the flag values for image build.
type imageBuildFlags struct {
	packer       string // --packer: packer binary
	validateOnly bool   // --validate-only: stop after packer validate
	region       string // --region: builder region override
	instanceType string // --instance-type: builder instance type override
}

func newImageBuildCommand() *cobra.Command {
	flags := &imageBuildFlags{}

	cmd := &cobra.Command{
		Use:   "build [path]",
		Short: "Validate and build the image",
		Long: `Build the training machine image.

Without a path, the template is rendered to manifest.output first, with the
same overrides as "manifest render". With a path, that template is used as
is. Packer must be installed; its output is streamed to stderr.

Examples:
  speechctl image build
  speechctl image build --validate-only
  speechctl image build images/packer.json`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runImageBuild(cmd.Context(), cmd.OutOrStdout(), args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.packer, "packer", "packer", "Packer binary")
	cmd.Flags().BoolVar(&flags.validateOnly, "validate-only", false, "Run packer validate only")
	cmd.Flags().StringVar(&flags.region, "region", "", "AWS region of the builder (rendered template only)")
	cmd.Flags().StringVar(&flags.instanceType, "instance-type", "", "EC2 instance type of the builder (rendered template only)")

	return cmd
}

func runImageBuild(ctx context.Context, out io.Writer, args []string, flags *imageBuildFlags) error {
	var (
		path string
		m    *manifest.Manifest
		err  error
	)

	if len(args) > 0 {
		path = args[0]
		if m, err = manifest.Load(path); err != nil {
			return err
		}
		if errs := manifest.Validate(m); len(errs) > 0 {
			return validationFailure(path, errs)
		}
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if m, err = renderManifest(cfg.Manifest, flags.region, flags.instanceType); err != nil {
			return err
		}
		path = cfg.Manifest.Output
		if err := manifest.Write(path, m); err != nil {
			return err
		}
		VerboseLog("Rendered %s", path)
	}

	name, err := manifest.ImageName(m, time.Now())
	if err != nil {
		return err
	}
	logger.Info("building image", "template", path, "name", name, "validate_only", flags.validateOnly)

	// Packer output goes to stderr so stdout only carries the result.
	err = manifest.Build(ctx, path, manifest.BuildOptions{
		Packer:       flags.packer,
		ValidateOnly: flags.validateOnly,
		Stdout:       os.Stderr,
		Stderr:       os.Stderr,
	})
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		return writeJSON(out, map[string]any{
			"template":     path,
			"imageName":    name,
			"validateOnly": flags.validateOnly,
		})
	}
	if flags.validateOnly {
		fmt.Fprintf(out, "%s passed packer validate.\n", path)
	} else {
		fmt.Fprintf(out, "Built image from %s.\n", path)
	}
	return nil
}
