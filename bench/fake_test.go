package bench

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// fakeResponse scripts the behavior of one spawned process.
type fakeResponse struct {
	stdout   string
	stderr   string
	exit     int
	runtime  time.Duration
	spawnErr error
}

type fakeProc struct {
	spec   CmdSpec
	resp   fakeResponse
	killed bool
}

func (p *fakeProc) KillTree() error {
	p.killed = true
	return nil
}

func (p *fakeProc) Wait(ctx context.Context, timeout time.Duration) (WaitStatus, error) {
	if ctx.Err() != nil {
		_ = p.KillTree()
		return WaitStatus{Cancelled: true}, ctx.Err()
	}
	if timeout > 0 && p.resp.runtime > timeout {
		_ = p.KillTree()
		return WaitStatus{TimedOut: true}, nil
	}
	if p.spec.Stdout != nil {
		_, _ = io.WriteString(p.spec.Stdout, p.resp.stdout)
	}
	if p.spec.Stderr != nil {
		_, _ = io.WriteString(p.spec.Stderr, p.resp.stderr)
	}
	return WaitStatus{ExitCode: p.resp.exit}, nil
}

// fakeSpawner replays scripted responses in spawn order, recording every
// process so tests can inspect the commands and kill behavior. Once the
// script runs out, spawns succeed with the default response.
type fakeSpawner struct {
	mu      sync.Mutex
	script  []fakeResponse
	defResp fakeResponse
	procs   []*fakeProc
}

func (s *fakeSpawner) Spawn(spec CmdSpec) (Proc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := s.defResp
	if len(s.script) > 0 {
		resp = s.script[0]
		s.script = s.script[1:]
	}
	if resp.spawnErr != nil {
		return nil, resp.spawnErr
	}
	proc := &fakeProc{spec: spec, resp: resp}
	s.procs = append(s.procs, proc)
	return proc, nil
}

// fakeBuildRunner counts build invocations and fails configured revisions.
type fakeBuildRunner struct {
	mu       sync.Mutex
	calls    map[string]int
	failRevs map[string]string
	delay    time.Duration
}

func newFakeBuildRunner() *fakeBuildRunner {
	return &fakeBuildRunner{calls: make(map[string]int), failRevs: make(map[string]string)}
}

func (r *fakeBuildRunner) RunBuild(_ context.Context, rev Revision, _ time.Duration) (string, error) {
	r.mu.Lock()
	r.calls[rev.ID]++
	r.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if reason, ok := r.failRevs[rev.ID]; ok {
		return "", fmt.Errorf("%s", reason)
	}
	return "/fake/bin/" + rev.ID, nil
}

func (r *fakeBuildRunner) totalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

// okToolchain accepts every compiler.
type okToolchain struct{}

func (okToolchain) Check(context.Context, string, string) error { return nil }

// failToolchain rejects one compiler by name.
type failToolchain struct {
	compiler string
}

func (f failToolchain) Check(_ context.Context, compiler, _ string) error {
	if compiler == f.compiler {
		return fmt.Errorf("missing required toolchain '%s'", compiler)
	}
	return nil
}
