package bench

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

// timePrefix marks the runtime's self-reported timing line in its stdout.
const timePrefix = "- TIME: "

// Executor runs one benchmark file against one built artifact with a hard
// wall-clock deadline. Each run gets a fresh working directory, so concurrent
// cells never share files, and a timed-out process tree is killed before Run
// returns.
type Executor struct {
	spawner Spawner
	work    string
}

func NewExecutor(spawner Spawner, workDir string) *Executor {
	return &Executor{spawner: spawner, work: workDir}
}

func (e *Executor) Run(ctx context.Context, art *BuildArtifact, file BenchmarkFile, timeout time.Duration) ExecutionResult {
	if art.Failed() {
		return ExecutionResult{Outcome: OutcomeBuildFailed, Reason: art.Err}
	}

	dir, err := os.MkdirTemp(e.work, "cell-")
	if err != nil {
		return ExecutionResult{Outcome: OutcomeCrashed, Stderr: err.Error()}
	}
	defer os.RemoveAll(dir)

	path, err := filepath.Abs(file.Path)
	if err != nil {
		return ExecutionResult{Outcome: OutcomeCrashed, Stderr: err.Error()}
	}

	klog.V(1).Infof("running '%s' under %s", file.Name, art.Kind)
	if art.Kind.Mode == ModeCompiled {
		return e.runCompiled(ctx, art, path, dir, timeout)
	}
	return e.runInterpreted(ctx, art, path, dir, timeout)
}

func (e *Executor) runInterpreted(ctx context.Context, art *BuildArtifact, path, dir string, timeout time.Duration) ExecutionResult {
	args := append(append([]string{}, art.Kind.RunArgs...), path)
	return e.measure(ctx, CmdSpec{Path: art.Bin, Args: args, Dir: dir}, timeout)
}

// runCompiled generates the backend source with the runtime binary, compiles
// it, and measures the produced binary. Codegen or compiler failure counts as
// a crash of the cell: the artifact itself built fine, so sibling cells
// sharing it are unaffected.
func (e *Executor) runCompiled(ctx context.Context, art *BuildArtifact, path, dir string, timeout time.Duration) ExecutionResult {
	src := filepath.Join(dir, "bench"+art.Kind.SourceExt)
	bin := filepath.Join(dir, "bench")

	args := append(append([]string{}, art.Kind.GenArgs...), path)
	res := e.capture(ctx, CmdSpec{Path: art.Bin, Args: args, Dir: dir}, src, timeout)
	if res != nil {
		return *res
	}

	args = append(append([]string{src}, art.Kind.CompilerArgs...), "-o", bin)
	if res := e.capture(ctx, CmdSpec{Path: art.Kind.Compiler, Args: args, Dir: dir}, "", timeout); res != nil {
		return *res
	}

	return e.measure(ctx, CmdSpec{Path: bin, Dir: dir}, timeout)
}

// capture runs a preparatory step (codegen or compile), optionally writing
// its stdout to outFile. It returns nil when the step succeeded and the cell
// can proceed.
func (e *Executor) capture(ctx context.Context, spec CmdSpec, outFile string, timeout time.Duration) *ExecutionResult {
	var stdout, stderr bytes.Buffer
	spec.Stdout = &stdout
	spec.Stderr = &stderr

	proc, err := e.spawner.Spawn(spec)
	if err != nil {
		return &ExecutionResult{Outcome: OutcomeCrashed, Stderr: err.Error()}
	}
	status, err := proc.Wait(ctx, timeout)
	if err != nil {
		return &ExecutionResult{Outcome: OutcomeSkipped, Reason: "cancelled"}
	}
	if status.TimedOut {
		return &ExecutionResult{Outcome: OutcomeTimeout}
	}
	if status.ExitCode != 0 {
		return &ExecutionResult{
			Outcome:  OutcomeCrashed,
			ExitCode: status.ExitCode,
			Stderr:   lastLines(stderr.String(), 5),
		}
	}

	if outFile != "" {
		if err := os.WriteFile(outFile, stdout.Bytes(), 0o644); err != nil {
			return &ExecutionResult{Outcome: OutcomeCrashed, Stderr: err.Error()}
		}
	}
	return nil
}

// measure runs the benchmark process itself, timing it from start to exit.
func (e *Executor) measure(ctx context.Context, spec CmdSpec, timeout time.Duration) ExecutionResult {
	var stdout, stderr bytes.Buffer
	spec.Stdout = &stdout
	spec.Stderr = &stderr

	start := time.Now()
	proc, err := e.spawner.Spawn(spec)
	if err != nil {
		return ExecutionResult{Outcome: OutcomeCrashed, Stderr: err.Error()}
	}
	status, err := proc.Wait(ctx, timeout)
	elapsed := time.Since(start)
	if err != nil {
		return ExecutionResult{Outcome: OutcomeSkipped, Reason: "cancelled"}
	}
	if status.TimedOut {
		return ExecutionResult{Outcome: OutcomeTimeout}
	}
	if status.ExitCode != 0 {
		return ExecutionResult{
			Outcome:  OutcomeCrashed,
			ExitCode: status.ExitCode,
			Stderr:   lastLines(stderr.String(), 5),
		}
	}

	res := ExecutionResult{Outcome: OutcomeSuccess, Elapsed: elapsed}
	if timing, ok := parseTiming(stdout.String()); ok {
		res.Timing = timing
	}
	return res
}

// parseTiming extracts the runtime's own timing line, when it printed one.
func parseTiming(stdout string) (string, bool) {
	for _, line := range strings.Split(stdout, "\n") {
		if timing, ok := strings.CutPrefix(line, timePrefix); ok {
			return strings.TrimSpace(timing), true
		}
	}
	return "", false
}

// lastLines returns the trailing n lines of s, collapsed to one line.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

// formatElapsed renders a wall-clock duration the way the report shows it.
func formatElapsed(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}
