package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"
)

// BuildArtifact is the outcome of building one revision for one runtime
// kind. A failed build is data, not an error: it must never abort the rest of
// the matrix.
type BuildArtifact struct {
	RevisionID string
	Kind       RuntimeKind
	// Bin is the runtime binary, set when the build succeeded.
	Bin string
	// Err is the failure reason, empty on success.
	Err string
}

func (a *BuildArtifact) Failed() bool {
	return a.Err != ""
}

// BuildRunner runs the configured build command inside a revision checkout
// and returns the path of the produced binary.
type BuildRunner interface {
	RunBuild(ctx context.Context, rev Revision, timeout time.Duration) (string, error)
}

// Builder produces build artifacts, caching them per (revision, runtime
// kind) for the lifetime of one invocation. Concurrent requests for the same
// key block on a single in-flight build and share its artifact. The runtime
// binary itself is additionally shared per revision, since every interpreted
// backend of a revision runs the same binary.
type Builder struct {
	runner  BuildRunner
	prober  ToolchainChecker
	timeout time.Duration

	group singleflight.Group

	mu    sync.Mutex
	cache map[string]*BuildArtifact
	bins  map[string]binResult
}

type binResult struct {
	bin string
	err error
}

func NewBuilder(runner BuildRunner, prober ToolchainChecker, buildTimeout time.Duration) *Builder {
	return &Builder{
		runner:  runner,
		prober:  prober,
		timeout: buildTimeout,
		cache:   make(map[string]*BuildArtifact),
		bins:    make(map[string]binResult),
	}
}

func artifactKey(revisionID string, kind RuntimeKind) string {
	return revisionID + "|" + string(kind.Mode) + "|" + kind.Backend
}

// Build is idempotent per invocation: a second call with the same key
// returns the cached artifact without re-running the build step.
func (b *Builder) Build(ctx context.Context, rev Revision, kind RuntimeKind) *BuildArtifact {
	key := artifactKey(rev.ID, kind)

	b.mu.Lock()
	art, ok := b.cache[key]
	b.mu.Unlock()
	if ok {
		return art
	}

	v, _, _ := b.group.Do(key, func() (interface{}, error) {
		art := b.build(ctx, rev, kind)
		b.mu.Lock()
		b.cache[key] = art
		b.mu.Unlock()
		return art, nil
	})
	return v.(*BuildArtifact)
}

func (b *Builder) build(ctx context.Context, rev Revision, kind RuntimeKind) *BuildArtifact {
	art := &BuildArtifact{RevisionID: rev.ID, Kind: kind}

	if kind.Mode == ModeCompiled {
		if err := b.prober.Check(ctx, kind.Compiler, kind.Requires); err != nil {
			art.Err = err.Error()
			return art
		}
	}

	bin, err := b.binary(ctx, rev)
	if err != nil {
		art.Err = err.Error()
		return art
	}
	art.Bin = bin
	return art
}

func (b *Builder) binary(ctx context.Context, rev Revision) (string, error) {
	b.mu.Lock()
	r, ok := b.bins[rev.ID]
	b.mu.Unlock()
	if ok {
		return r.bin, r.err
	}

	v, err, _ := b.group.Do("bin|"+rev.ID, func() (interface{}, error) {
		klog.Infof("building revision '%s' (%s)", rev.Name, rev.ID)
		bin, err := b.runner.RunBuild(ctx, rev, b.timeout)
		b.mu.Lock()
		b.bins[rev.ID] = binResult{bin: bin, err: err}
		b.mu.Unlock()
		return bin, err
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type execBuildRunner struct {
	build   BuildConfiguration
	spawner Spawner
}

// NewBuildRunner returns a BuildRunner that runs the configured build command
// through the given Spawner, so a hung build is tree-killed at its deadline
// like any benchmark process.
func NewBuildRunner(build BuildConfiguration, spawner Spawner) BuildRunner {
	return &execBuildRunner{build: build, spawner: spawner}
}

func (r *execBuildRunner) RunBuild(ctx context.Context, rev Revision, timeout time.Duration) (string, error) {
	var stderr bytes.Buffer
	proc, err := r.spawner.Spawn(CmdSpec{
		Path:   r.build.Command[0],
		Args:   r.build.Command[1:],
		Dir:    rev.Dir,
		Stderr: &stderr,
	})
	if err != nil {
		return "", fmt.Errorf("unable to start the build command: %w", err)
	}

	status, err := proc.Wait(ctx, timeout)
	if err != nil {
		return "", err
	}
	if status.TimedOut {
		return "", errors.New("build timeout")
	}
	if status.ExitCode != 0 {
		return "", fmt.Errorf("build exited with status %d: %s", status.ExitCode, lastLines(stderr.String(), 5))
	}

	bin := filepath.Join(rev.Dir, r.build.BinaryPath)
	if _, err := os.Stat(bin); err != nil {
		return "", fmt.Errorf("build produced no binary at '%s'", r.build.BinaryPath)
	}
	return bin, nil
}
