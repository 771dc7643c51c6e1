package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the command tree with args and captures stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitError, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitThresholdFailed, ExitCode(withCode(ExitThresholdFailed, errors.New("thresholds failed"))))

	wrapped := fmt.Errorf("outer: %w", withCode(ExitThresholdFailed, errors.New("inner")))
	assert.Equal(t, ExitThresholdFailed, ExitCode(wrapped))
	assert.Nil(t, withCode(ExitError, nil))
}

func TestRootCmd_Help(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "prload")
	for _, sub := range []string{"run", "validate", "workflows", "mock"} {
		assert.Contains(t, out, sub)
	}
}

func TestWorkflowsCmd(t *testing.T) {
	out, err := execute(t, "workflows")
	require.NoError(t, err)
	assert.Contains(t, out, "baseline")
	assert.Contains(t, out, "lifecycle")
	assert.Contains(t, out, "smoke")
	assert.Contains(t, out, "stress")
}

func TestValidateCmd_Default(t *testing.T) {
	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration valid: 3 scenario(s), 3 threshold(s)")
	assert.Contains(t, out, "stress: ramping-vus, exec stress, max 30 VUs, 2m30s after 3m0s")
}

func TestValidateCmd_Errors(t *testing.T) {
	path := writeConfig(t, `
scenarios:
  smoke:
    executor: constant-vus
    vus: -1
    duration: 10s
`)
	_, err := execute(t, "validate", "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitError, ExitCode(err))
	assert.Contains(t, err.Error(), "scenarios.smoke.vus")

	_, err = execute(t, "validate", "--scenario", "soak")
	assert.Equal(t, ExitError, ExitCode(err))
	assert.ErrorContains(t, err, "unknown scenario(s): soak")
}
