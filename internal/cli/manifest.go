// manifest.go implements the "speechctl manifest" commands.
//
// The manifest commands manage the Packer template that builds the
// training machine image:
//
//	render    write the project's template, with region and instance type
//	          overrides from speechctl.yaml or flags
//	validate  check a template against the rules the build relies on
//	diff      list the JSON paths that differ between two templates
package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcgarrah/speech-enhancement/internal/config"
	"github.com/mcgarrah/speech-enhancement/internal/manifest"
	"github.com/mcgarrah/speech-enhancement/internal/model"
)

// NewManifestCommand creates the "manifest" parent command.
func NewManifestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Render, validate and compare the image build template",
	}

	cmd.AddCommand(newManifestRenderCommand())
	cmd.AddCommand(newManifestValidateCommand())
	cmd.AddCommand(newManifestDiffCommand())

	return cmd
}

// renderFlags holds the flag values for manifest render.
type renderFlags struct {
	output       string // --output: destination, "-" for stdout
	region       string // --region: builder region override
	instanceType string // --instance-type: builder instance type override
}

func newManifestRenderCommand() *cobra.Command {
	flags := &renderFlags{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Write the Packer template",
		Long: `Write the Packer template for the training image.

Only the builder's region and instance type can be changed; everything else
is fixed. Flags take precedence over the manifest section of speechctl.yaml.

Examples:
  speechctl manifest render
  speechctl manifest render --output - --region eu-west-1
  speechctl manifest render --instance-type p3.2xlarge`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifestRender(cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output path, - for stdout (default: manifest.output in config)")
	cmd.Flags().StringVar(&flags.region, "region", "", "AWS region of the builder")
	cmd.Flags().StringVar(&flags.instanceType, "instance-type", "", "EC2 instance type of the builder")

	return cmd
}

func runManifestRender(out io.Writer, flags *renderFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m, err := renderManifest(cfg.Manifest, flags.region, flags.instanceType)
	if err != nil {
		return err
	}

	path := flags.output
	if path == "" {
		path = cfg.Manifest.Output
	}
	if path == "-" {
		data, err := manifest.Marshal(m)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	if err := manifest.Write(path, m); err != nil {
		return err
	}
	logger.Info("wrote manifest", "path", path, "region", m.Builders[0].Region, "instance_type", m.Builders[0].InstanceType)

	if IsJSONOutput() {
		return writeJSON(out, map[string]string{"path": path})
	}
	fmt.Fprintf(out, "Wrote %s\n", path)
	return nil
}

// renderManifest applies config overrides, then flag overrides, to the
// default template and validates the result.
func renderManifest(c config.Manifest, region, instanceType string) (*manifest.Manifest, error) {
	o := manifest.Overrides{Region: c.Region, InstanceType: c.InstanceType}
	if region != "" {
		o.Region = region
	}
	if instanceType != "" {
		o.InstanceType = instanceType
	}

	base := manifest.Default()
	m := manifest.Apply(base, o)
	for _, path := range manifest.Diff(base, m) {
		VerboseLog("Overridden: %s", path)
	}

	if errs := manifest.Validate(m); len(errs) > 0 {
		return nil, validationFailure("rendered manifest", errs)
	}
	return m, nil
}

func newManifestValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Check a Packer template",
		Long: `Check a Packer template: one amazon-ebs builder selecting the most
recent matching source image, a boot volume smaller than the data volume,
a timestamped image name and one shell provisioner.

The path defaults to manifest.output in speechctl.yaml.`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifestValidate(cmd.OutOrStdout(), args)
		},
	}
}

// validateResultJSON is the JSON output structure of manifest validate.
type validateResultJSON struct {
	Path      string            `json:"path"`
	Valid     bool              `json:"valid"`
	ImageName string            `json:"imageName,omitempty"`
	Errors    []validateErrJSON `json:"errors"`
}

type validateErrJSON struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func runManifestValidate(out io.Writer, args []string) error {
	path, err := manifestPath(args)
	if err != nil {
		return err
	}

	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	errs := manifest.Validate(m)

	if IsJSONOutput() {
		result := validateResultJSON{Path: path, Valid: len(errs) == 0, Errors: make([]validateErrJSON, 0, len(errs))}
		for _, e := range errs {
			result.Errors = append(result.Errors, validateErrJSON{Field: e.Field, Message: e.Message})
		}
		if len(errs) == 0 {
			result.ImageName, _ = manifest.ImageName(m, time.Now())
		}
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else if len(errs) == 0 {
		name, _ := manifest.ImageName(m, time.Now())
		fmt.Fprintf(out, "%s is valid (image name: %s)\n", path, name)
	} else {
		for _, e := range errs {
			fmt.Fprintf(out, "%s: %s: %s\n", path, e.Field, e.Message)
		}
	}

	if len(errs) > 0 {
		return validationFailure(path, errs)
	}
	return nil
}

func newManifestDiffCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <a> <b>",
		Short: "List the fields that differ between two templates",
		Long: `List the JSON paths of the values that differ between two Packer
templates. Use "-" for either argument to compare against the default
template.

Examples:
  speechctl manifest diff - packer.json`,

		Args: cobra.ExactArgs(2),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifestDiff(cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func runManifestDiff(out io.Writer, pathA, pathB string) error {
	a, err := loadOrDefault(pathA)
	if err != nil {
		return err
	}
	b, err := loadOrDefault(pathB)
	if err != nil {
		return err
	}

	paths := manifest.Diff(a, b)
	if IsJSONOutput() {
		if paths == nil {
			paths = []string{}
		}
		return writeJSON(out, map[string][]string{"differences": paths})
	}
	if len(paths) == 0 {
		fmt.Fprintln(out, "No differences.")
		return nil
	}
	for _, p := range paths {
		fmt.Fprintln(out, p)
	}
	return nil
}

// loadOrDefault loads the template at path, or returns the default one
// when path is "-".
func loadOrDefault(path string) (*manifest.Manifest, error) {
	if path == "-" {
		return manifest.Default(), nil
	}
	return manifest.Load(path)
}

// manifestPath returns the template path from args, or the configured
// output path.
func manifestPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Manifest.Output, nil
}

// validationFailure turns validation errors into a CLIError that reports
// the first violation and the total count.
func validationFailure(what string, errs []manifest.ValidationError) error {
	first := errs[0]
	msg := fmt.Sprintf("%s is invalid: %s: %s", what, first.Field, first.Message)
	if len(errs) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(errs)-1)
	}
	return model.NewCLIError(model.ExitManifestInvalid, msg)
}
