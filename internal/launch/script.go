package launch

import (
	"bytes"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"

	"github.com/mcgarrah/speech-enhancement/internal/model"
)

// Script renders plan as the equivalent bash script: one line per step,
// preceded by `set -e` so the first failing command ends it, and by a cd
// into the checkout when it is not the current directory.
//
// The rendered text is parsed back before being returned, so a script
// that Script returns is always syntactically valid.
func Script(plan *Plan) (string, error) {
	var b strings.Builder
	b.WriteString("#!/usr/bin/env bash\n")
	b.WriteString("set -e\n")
	if plan.Dir != "" && plan.Dir != "." {
		b.WriteString("cd " + mustQuote(plan.Dir) + "\n")
	}

	for _, step := range plan.Steps {
		words := make([]string, 0, len(step.Argv))
		for _, arg := range step.Argv {
			q, err := syntax.Quote(arg, syntax.LangBash)
			if err != nil {
				return "", fmt.Errorf("cannot quote %q for step %s: %w", arg, step.Kind, err)
			}
			words = append(words, q)
		}
		b.WriteString(strings.Join(words, " ") + "\n")
	}

	file, err := parse(b.String())
	if err != nil {
		return "", fmt.Errorf("rendered script does not parse: %w", err)
	}

	var out bytes.Buffer
	if err := syntax.NewPrinter().Print(&out, file); err != nil {
		return "", fmt.Errorf("failed to print script: %w", err)
	}
	return out.String(), nil
}

// ParseScript returns the simple commands of a launch script in order,
// with quotes removed. Assignments, `set` and `cd` lines are skipped.
func ParseScript(script string) ([][]string, error) {
	file, err := parse(script)
	if err != nil {
		return nil, err
	}

	cfg := &expand.Config{}
	var (
		commands [][]string
		walkErr  error
	)
	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 || walkErr != nil {
			return true
		}

		argv := make([]string, 0, len(call.Args))
		for _, w := range call.Args {
			s, err := expand.Literal(cfg, w)
			if err != nil {
				walkErr = fmt.Errorf("line %d: %w", w.Pos().Line(), err)
				return false
			}
			argv = append(argv, s)
		}
		switch argv[0] {
		case "set", "cd":
			return true
		}
		commands = append(commands, argv)
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return commands, nil
}

// CheckScript compares an existing launch script against plan and returns
// one message per mismatch. An empty result means the script runs the same
// five commands in the same order.
func CheckScript(script string, plan *Plan) ([]string, error) {
	commands, err := ParseScript(script)
	if err != nil {
		return nil, err
	}

	var problems []string
	if len(commands) != len(plan.Steps) {
		problems = append(problems,
			fmt.Sprintf("script runs %d commands, expected %d", len(commands), len(plan.Steps)))
	}

	for i, step := range plan.Steps {
		if i >= len(commands) {
			problems = append(problems, fmt.Sprintf("missing %s step: %s", step.Kind, step))
			continue
		}
		got := commands[i]
		if !sameCommand(step, got) {
			problems = append(problems,
				fmt.Sprintf("command %d: got %q, expected %s step %q", i+1, strings.Join(got, " "), step.Kind, step.String()))
		}
	}
	return problems, nil
}

// sameCommand compares a parsed command with a plan step. `.` is
// accepted for `source`, and `git pull` without a remote for the pull step.
func sameCommand(step Step, got []string) bool {
	want := step.Argv
	if step.Kind == model.StepActivate && len(got) == 2 && got[0] == "." {
		got = []string{"source", got[1]}
	}
	if step.Kind == model.StepPull && len(got) == 2 && got[0] == "git" && got[1] == "pull" {
		return true
	}
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != got[i] {
			return false
		}
	}
	return true
}

func parse(script string) (*syntax.File, error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	return parser.Parse(strings.NewReader(script), "train.sh")
}

func mustQuote(s string) string {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return "'" + s + "'"
	}
	return q
}
