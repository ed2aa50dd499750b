package bench

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(runner BuildRunner, spawner Spawner, workers int, t *testing.T) *Scheduler {
	builder := NewBuilder(runner, okToolchain{}, time.Minute)
	executor := NewExecutor(spawner, t.TempDir())
	return NewScheduler(builder, executor, workers, time.Minute)
}

func TestSchedulerFullEnumeration(t *testing.T) {
	revs := []Revision{testRevA, testRevB}
	kinds := []RuntimeKind{interpRust, interpC, compiledC}
	files := []BenchmarkFile{{Name: "sum_rec", Path: "programs/sum_rec.hvm"}, {Name: "sum_tree", Path: "programs/sum_tree.hvm"}}

	spawner := &fakeSpawner{defResp: fakeResponse{stdout: "- TIME: 0.100s\n"}}
	s := newTestScheduler(newFakeBuildRunner(), spawner, 4, t)

	matrix := s.Execute(context.Background(), revs, kinds, files)

	assert.Equal(t, len(revs)*len(kinds)*len(files), matrix.Len())
	for _, file := range files {
		for _, kind := range kinds {
			for _, rev := range revs {
				key := CellKey{File: file.Name, Mode: kind.Mode, Backend: kind.Backend, RevisionID: rev.ID}
				res, ok := matrix.Get(key)
				require.True(t, ok, "missing cell %+v", key)
				assert.Equal(t, OutcomeSuccess, res.Outcome)
				assert.Equal(t, "0.100s", res.Timing)
			}
		}
	}
}

func TestSchedulerBuildFailureIsolatedToSharingCells(t *testing.T) {
	runner := newFakeBuildRunner()
	runner.failRevs[testRevB.ID] = "linker error"

	revs := []Revision{testRevA, testRevB}
	kinds := []RuntimeKind{interpRust, interpC}
	files := []BenchmarkFile{{Name: "sum_rec", Path: "programs/sum_rec.hvm"}}

	spawner := &fakeSpawner{defResp: fakeResponse{stdout: "- TIME: 0.100s\n"}}
	s := newTestScheduler(runner, spawner, 2, t)

	matrix := s.Execute(context.Background(), revs, kinds, files)

	for _, kind := range kinds {
		good, ok := matrix.Get(CellKey{File: "sum_rec", Mode: kind.Mode, Backend: kind.Backend, RevisionID: testRevA.ID})
		require.True(t, ok)
		assert.Equal(t, OutcomeSuccess, good.Outcome, "sibling cells must still run")

		bad, ok := matrix.Get(CellKey{File: "sum_rec", Mode: kind.Mode, Backend: kind.Backend, RevisionID: testRevB.ID})
		require.True(t, ok)
		assert.Equal(t, OutcomeBuildFailed, bad.Outcome)
		assert.Equal(t, "linker error", bad.Reason)
	}
	assert.Equal(t, 2, runner.totalCalls(), "one build attempt per revision across all cells")
}

func TestSchedulerDeterministicReportAcrossWorkerCounts(t *testing.T) {
	revs := []Revision{testRevA, testRevB}
	kinds := []RuntimeKind{interpRust, interpC, compiledC, compiledCU}
	files := []BenchmarkFile{{Name: "sum_rec", Path: "programs/sum_rec.hvm"}, {Name: "sum_tree", Path: "programs/sum_tree.hvm"}}

	var reports []string
	for _, workers := range []int{1, 8} {
		spawner := &fakeSpawner{defResp: fakeResponse{stdout: "- TIME: 0.100s\n"}}
		s := newTestScheduler(newFakeBuildRunner(), spawner, workers, t)
		matrix := s.Execute(context.Background(), revs, kinds, files)
		reports = append(reports, Render(matrix, revs, kinds, files))
	}
	assert.Equal(t, reports[0], reports[1], "report must not depend on execution parallelism")
}

func TestSchedulerCancelledRunStillFillsMatrix(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	revs := []Revision{testRevA}
	kinds := []RuntimeKind{interpRust}
	files := []BenchmarkFile{{Name: "sum_rec", Path: "programs/sum_rec.hvm"}}

	s := newTestScheduler(newFakeBuildRunner(), &fakeSpawner{}, 2, t)
	matrix := s.Execute(ctx, revs, kinds, files)

	res, ok := matrix.Get(CellKey{File: "sum_rec", Mode: ModeInterpreted, Backend: "rust", RevisionID: testRevA.ID})
	require.True(t, ok, "a cancelled cell still gets an intentional entry")
	assert.Equal(t, OutcomeSkipped, res.Outcome)
}
