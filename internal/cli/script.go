// script.go implements the "speechctl script" command.
//
// The script command prints the launch sequence as the equivalent bash
// script, for machines where speechctl is not installed. With --check it
// compares an existing script against the configured sequence instead.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcgarrah/speech-enhancement/internal/launch"
	"github.com/mcgarrah/speech-enhancement/internal/model"
)

// scriptFlags holds the flag values for the script command.
type scriptFlags struct {
	check string // --check: existing script to compare
}

// NewScriptCommand creates the "script" cobra command.
func NewScriptCommand() *cobra.Command {
	flags := &scriptFlags{}

	cmd := &cobra.Command{
		Use:   "script",
		Short: "Print or check the launch sequence as a bash script",
		Long: `Print the launch sequence as a bash script, one command per step,
or check that an existing script runs the same commands in the same order.

Examples:
  speechctl script > train.sh
  speechctl script --check train.sh`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.check, "check", "", "Compare an existing script against the launch sequence")

	return cmd
}

func runScript(out io.Writer, flags *scriptFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The script does not export the env file, so the run ID is unused.
	plan, err := launch.NewPlan(cfg.Launch, nil)
	if err != nil {
		return err
	}

	if flags.check != "" {
		return checkScript(out, flags.check, plan)
	}

	script, err := launch.Script(plan)
	if err != nil {
		return err
	}
	if IsJSONOutput() {
		return writeJSON(out, map[string]string{"script": script})
	}
	_, err = fmt.Fprint(out, script)
	return err
}

// checkScriptJSON is the JSON output structure of script --check.
type checkScriptJSON struct {
	Path     string   `json:"path"`
	Matches  bool     `json:"matches"`
	Problems []string `json:"problems"`
}

func checkScript(out io.Writer, path string, plan *launch.Plan) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("failed to read script %s", path), err)
	}

	problems, err := launch.CheckScript(string(data), plan)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("failed to parse script %s", path), err)
	}

	if IsJSONOutput() {
		if problems == nil {
			problems = []string{}
		}
		if err := writeJSON(out, checkScriptJSON{Path: path, Matches: len(problems) == 0, Problems: problems}); err != nil {
			return err
		}
	} else if len(problems) == 0 {
		fmt.Fprintf(out, "%s matches the launch sequence.\n", path)
	} else {
		fmt.Fprintf(out, "%s differs from the launch sequence:\n  %s\n", path, strings.Join(problems, "\n  "))
	}

	if len(problems) > 0 {
		return model.NewCLIError(model.ExitGeneralError, fmt.Sprintf("%s does not match the launch sequence", path))
	}
	return nil
}
