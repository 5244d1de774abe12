package isolation

import (
	"fmt"
	"os"
	"os/exec"
)

// Restarter replaces the running process.
type Restarter interface {
	Restart() error
}

// RestartFunc adapts a function to Restarter.
type RestartFunc func() error

func (f RestartFunc) Restart() error { return f() }

// ProcessRestarter launches a copy of the current binary with the same
// arguments, then calls Exit.
type ProcessRestarter struct {
	Exit func(code int)
}

// NewProcessRestarter returns a restarter that calls exit once the new
// process has started. A nil exit uses os.Exit.
func NewProcessRestarter(exit func(int)) *ProcessRestarter {
	if exit == nil {
		exit = os.Exit
	}
	return &ProcessRestarter{Exit: exit}
}

func (r *ProcessRestarter) Restart() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", exe, err)
	}
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("release child: %w", err)
	}
	r.Exit(0)
	return nil
}
