//go:build unix

package bench

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireSh(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestSpawnerCapturesOutputAndStatus(t *testing.T) {
	sh := requireSh(t)

	var stdout bytes.Buffer
	proc, err := NewSpawner().Spawn(CmdSpec{
		Path:   sh,
		Args:   []string{"-c", `echo "- TIME: 0.1s"`},
		Dir:    t.TempDir(),
		Stdout: &stdout,
	})
	require.NoError(t, err)

	status, err := proc.Wait(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.False(t, status.TimedOut)
	assert.Equal(t, 0, status.ExitCode)

	timing, ok := parseTiming(stdout.String())
	require.True(t, ok)
	assert.Equal(t, "0.1s", timing)
}

func TestSpawnerNonZeroExit(t *testing.T) {
	sh := requireSh(t)

	proc, err := NewSpawner().Spawn(CmdSpec{Path: sh, Args: []string{"-c", "exit 7"}, Dir: t.TempDir()})
	require.NoError(t, err)

	status, err := proc.Wait(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 7, status.ExitCode)
}

// The timeout law: once Wait reports a timeout, neither the child nor any of
// its descendants may still be alive.
func TestSpawnerTimeoutKillsDescendants(t *testing.T) {
	sh := requireSh(t)

	var stdout bytes.Buffer
	proc, err := NewSpawner().Spawn(CmdSpec{
		Path:   sh,
		Args:   []string{"-c", "sleep 30 & echo $!; wait"},
		Dir:    t.TempDir(),
		Stdout: &stdout,
	})
	require.NoError(t, err)

	start := time.Now()
	status, err := proc.Wait(context.Background(), 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, status.TimedOut)
	assert.Less(t, time.Since(start), 10*time.Second, "Wait must not linger for the sleep")

	pid, err := strconv.Atoi(strings.TrimSpace(stdout.String()))
	require.NoError(t, err, "the shell should have reported the sleep's pid")

	assert.Eventually(t, func() bool {
		return syscall.Kill(pid, 0) == syscall.ESRCH
	}, 5*time.Second, 50*time.Millisecond, "the grandchild must not survive the kill")
}

func TestSpawnerCancellationKillsChild(t *testing.T) {
	sh := requireSh(t)

	proc, err := NewSpawner().Spawn(CmdSpec{Path: sh, Args: []string{"-c", "sleep 30"}, Dir: t.TempDir()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	status, err := proc.Wait(ctx, time.Minute)
	assert.Error(t, err)
	assert.True(t, status.Cancelled)
	assert.Less(t, time.Since(start), 10*time.Second)
}
