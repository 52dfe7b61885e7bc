// Package checkout keeps the training source checkout up to date.
//
// The first step of every training launch is a pull of the repository the
// launcher runs from. This package performs that pull in-process with
// go-git, so the launch does not depend on a git binary being installed on
// the training host.
//
// All errors are wrapped in model.CLIError with ExitGitError so the CLI can
// map them to the right exit code.
package checkout
