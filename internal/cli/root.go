// Package cli implements the prload command line.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// Exit codes.
const (
	ExitOK              = 0
	ExitThresholdFailed = 1
	ExitError           = 2
)

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// ExitCode maps an error returned by Execute to a process exit code.
// Errors without an explicit code are configuration or engine errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitError
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "prload",
		Short:   "Load testing for the pull-request reviewer service",
		Version: version,
		Long: `prload drives the pull-request reviewer service with virtual users.

Scenarios run concurrently, each with its own executor (constant-vus or
ramping-vus) and workflow. Thresholds on the collected metrics decide
whether the run passes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newWorkflowsCmd())
	root.AddCommand(newMockCmd())
	return root
}

// Execute runs the root command with os.Args.
// This is called by main.main().
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}
