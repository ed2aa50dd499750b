package bench

import (
	"sync"
	"time"
)

// Outcome classifies one cell of the benchmark matrix.
type Outcome int

const (
	// OutcomeSuccess means the benchmark ran to completion before the
	// deadline with a zero exit status.
	OutcomeSuccess Outcome = iota
	// OutcomeTimeout means the process tree was killed at the deadline.
	OutcomeTimeout
	// OutcomeCrashed means the benchmark exited non-zero, or a per-cell
	// codegen/compile step did.
	OutcomeCrashed
	// OutcomeBuildFailed means the artifact for this cell's build key could
	// not be produced; the benchmark was never started.
	OutcomeBuildFailed
	// OutcomeSkipped means the cell was in scope but intentionally not run,
	// e.g. because the whole run was cancelled.
	OutcomeSkipped
)

// ExecutionResult is the recorded outcome of one cell.
type ExecutionResult struct {
	Outcome Outcome

	// Elapsed is the wall clock from process start to exit, set on success.
	Elapsed time.Duration
	// Timing is the program's self-reported timing line, when it printed one.
	// The report prefers it over Elapsed.
	Timing string

	// ExitCode and Stderr describe a crash.
	ExitCode int
	Stderr   string

	// Reason describes a build failure or a skip.
	Reason string
}

// CellKey identifies one (benchmark-file, mode, backend, revision)
// combination, the atomic unit of scheduling and reporting.
type CellKey struct {
	File       string
	Mode       Mode
	Backend    string
	RevisionID string
}

// ResultMatrix is the sparse mapping from cell keys to outcomes. Absence of a
// key is meaningful and distinct from any recorded failure. Cells may be
// recorded in any order and from multiple goroutines.
type ResultMatrix struct {
	mu    sync.Mutex
	cells map[CellKey]ExecutionResult
}

func NewResultMatrix() *ResultMatrix {
	return &ResultMatrix{cells: make(map[CellKey]ExecutionResult)}
}

func (m *ResultMatrix) Put(key CellKey, res ExecutionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells[key] = res
}

func (m *ResultMatrix) Get(key CellKey) (ExecutionResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.cells[key]
	return res, ok
}

func (m *ResultMatrix) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cells)
}
