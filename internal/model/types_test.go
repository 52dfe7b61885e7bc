package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStepOrder pins the launch order. Reordering steps changes what the
// training process sees (e.g. installing before activation), so this is a
// regression guard.
func TestStepOrder(t *testing.T) {
	assert.Equal(t,
		[]StepKind{StepPull, StepActivate, StepInstall, StepLogin, StepTrain},
		StepOrder)
}

func TestStepKind_IsValid(t *testing.T) {
	for _, k := range StepOrder {
		assert.True(t, k.IsValid(), k.String())
	}
	assert.False(t, StepKind("deploy").IsValid())
	assert.False(t, StepKind("").IsValid())
}

func TestValidateMode(t *testing.T) {
	tests := []struct {
		mode  string
		valid bool
	}{
		{"prod", true},
		{"dev", true},
		{"staging-2", true},
		{"", false},
		{"Prod", false},
		{"prod dev", false},
		{"--prod", false},
		{"prod;rm", false},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			err := ValidateMode(tt.mode)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLaunchReport_Failed(t *testing.T) {
	boom := errors.New("exit status 1")
	report := &LaunchReport{
		Steps: []StepResult{
			{Kind: StepPull},
			{Kind: StepActivate},
			{Kind: StepInstall, Err: boom},
		},
	}

	failed := report.Failed()
	require.NotNil(t, failed)
	assert.Equal(t, StepInstall, failed.Kind)
	assert.False(t, report.Completed())
}

func TestLaunchReport_Completed(t *testing.T) {
	report := &LaunchReport{}
	for _, k := range StepOrder {
		report.Steps = append(report.Steps, StepResult{Kind: k})
	}
	assert.Nil(t, report.Failed())
	assert.True(t, report.Completed())

	// A partial report with no failures is not complete.
	partial := &LaunchReport{Steps: report.Steps[:3]}
	assert.False(t, partial.Completed())
}

func TestStepResult_Duration(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := StepResult{StartedAt: start, FinishedAt: start.Add(3 * time.Second)}
	assert.Equal(t, 3*time.Second, r.Duration())
	assert.True(t, r.Succeeded())
}

// TestCLIError_Unwrap verifies that CLIError participates in Go's error
// wrapping chain so callers can use errors.Is.
func TestCLIError_Unwrap(t *testing.T) {
	inner := errors.New("no such file")
	err := WrapCLIError(ExitConfigError, "failed to load config", inner)

	assert.Equal(t, "failed to load config: no such file", err.Error())
	assert.True(t, errors.Is(err, inner))

	var cliErr *CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, ExitConfigError, cliErr.Code)
}

func TestNewCLIError(t *testing.T) {
	err := NewCLIError(ExitManifestInvalid, "manifest has no builders")
	assert.Equal(t, "manifest has no builders", err.Error())
	assert.Nil(t, err.Unwrap())
}
