package bench

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"time"
)

// CmdSpec describes a child process to spawn.
type CmdSpec struct {
	Path   string
	Args   []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// WaitStatus is the terminal state of a child process.
type WaitStatus struct {
	ExitCode  int
	TimedOut  bool
	Cancelled bool
}

// Proc is a running child process.
type Proc interface {
	// Wait blocks until the process exits, the deadline passes, or ctx is
	// cancelled. On deadline or cancellation the whole process tree is killed
	// and reaped before Wait returns, so no descendant outlives the call.
	// A timeout of zero means no deadline.
	Wait(ctx context.Context, timeout time.Duration) (WaitStatus, error)
	// KillTree forcibly terminates the process and all its descendants.
	KillTree() error
}

// Spawner abstracts child process creation and termination so that executor
// logic stays platform agnostic.
type Spawner interface {
	Spawn(spec CmdSpec) (Proc, error)
}

type osSpawner struct{}

// NewSpawner returns the operating-system Spawner. Children are placed in
// their own process group so that KillTree reaches their descendants.
func NewSpawner() Spawner {
	return osSpawner{}
}

func (osSpawner) Spawn(spec CmdSpec) (Proc, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	setProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &osProc{cmd: cmd}, nil
}

type osProc struct {
	cmd *exec.Cmd
}

func (p *osProc) KillTree() error {
	return killTree(p.cmd)
}

func (p *osProc) Wait(ctx context.Context, timeout time.Duration) (WaitStatus, error) {
	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case err := <-done:
		return exitStatus(err)
	case <-deadline:
		_ = p.KillTree()
		<-done
		return WaitStatus{TimedOut: true}, nil
	case <-ctx.Done():
		_ = p.KillTree()
		<-done
		return WaitStatus{Cancelled: true}, ctx.Err()
	}
}

func exitStatus(err error) (WaitStatus, error) {
	if err == nil {
		return WaitStatus{}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return WaitStatus{ExitCode: exitErr.ExitCode()}, nil
	}
	return WaitStatus{}, err
}
