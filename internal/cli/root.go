// Package cli implements the cobra-based CLI commands for speechctl.
//
// Each subcommand (train, script, manifest, image) is defined in its own
// file within this package. This file defines the root command that serves
// as the parent for all subcommands and handles global flags.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mcgarrah/speech-enhancement/internal/config"
	"github.com/mcgarrah/speech-enhancement/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	jsonOutput bool

	// verbose lowers the log level to debug.
	verbose bool

	// configPath is the speechctl.yaml to load. Empty means the default
	// file in the current directory, if present.
	configPath string
)

// logger is the CLI's structured logger. It writes to stderr so stdout
// stays reserved for command output.
var logger = newLogger(os.Stderr, false)

// Version, Commit, and Date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// The root command itself does not perform any action. It only provides
// help text and global flags; the work is done by the subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "speechctl",
		Short: "Launch speech enhancement training and build its GPU image",
		Long: `speechctl runs the speech enhancement training launch sequence
(pull, activate, install, login, train) and manages the Packer template
that builds the GPU machine image the training runs on.`,

		// Errors are printed by Execute, in text or JSON.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		// The logger is rebuilt once flags are parsed so --verbose applies.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = newLogger(cmd.ErrOrStderr(), verbose)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		fmt.Sprintf("Config file (default: ./%s if present)", config.DefaultFileName))

	rootCmd.AddCommand(NewTrainCommand())
	rootCmd.AddCommand(NewScriptCommand())
	rootCmd.AddCommand(NewManifestCommand())
	rootCmd.AddCommand(NewImageCommand())

	return rootCmd
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// CLIError types, wrapped or not, carry their own exit codes; other
// errors exit with 1.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			printError(os.Stderr, cliErr.Message, cliErr.Err)
			os.Exit(int(cliErr.Code))
		}

		printError(os.Stderr, err.Error(), nil)
		os.Exit(int(model.ExitGeneralError))
	}
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode; stdout is reserved for
		// successful command output.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// newLogger builds the stderr logger. Verbose mode enables debug output
// and timestamps.
func newLogger(w io.Writer, verbose bool) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		Prefix:          "speechctl",
		ReportTimestamp: verbose,
	})
	if verbose {
		l.SetLevel(log.DebugLevel)
	}
	return l
}

// VerboseLog prints a debug message. It is only visible with --verbose.
func VerboseLog(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}

// loadConfig loads the configuration selected by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		VerboseLog("Loaded config %s", configPath)
	}
	return cfg, nil
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
