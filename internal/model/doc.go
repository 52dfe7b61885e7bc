// Package model defines the domain types and value objects for the
// speechctl CLI.
//
// This package contains pure data structures with no external dependencies.
// The training launch is described as an ordered list of steps (StepKind),
// and every step outcome is captured in a StepResult so the CLI can report
// what ran and where the sequence stopped.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
