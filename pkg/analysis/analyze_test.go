package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/rosetta"
	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/utils"
)

const finishedLog = "protocols.jd2.JobDistributor: 1JTG_0001 reported success in 120 seconds\n" +
	"protocols.jd2.JobDistributor: no more batches to process...\n"

func writeStructDir(t *testing.T, dir string, finished bool) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	log := "core.init: started\n"
	if finished {
		log = finishedLog
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, rosetta.OutputLogFile), []byte(log), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, rosetta.ScoreDBFile), nil, 0644))
}

// fakeScores returns rows whose ddG equals structNum for every checkpoint.
type fakeScores struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeScores) read(path string, structNum int, caseName string, stride int) ([]Row, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()
	if f.fail[filepath.Base(filepath.Dir(path))] {
		return nil, errors.New("corrupt database")
	}

	var rows []Row
	for _, state := range []string{StateBoundMut, StateUnboundMut, StateBoundWT, StateUnboundWT} {
		terms := gamTerms(0)
		terms[TotalScore] = 0
		if state == StateBoundMut {
			terms[TotalScore] = float64(structNum)
		}
		rows = append(rows, Row{
			Case:          caseName,
			State:         state,
			BackrubSteps:  stride,
			StructNum:     structNum,
			ScoreFunction: "fa_talaris2014",
			Terms:         terms,
		})
	}
	return rows, nil
}

func newTestAnalyzer(t *testing.T, scores *fakeScores) *Analyzer {
	return &Analyzer{
		ReadScores:      scores.read,
		OutputDir:       filepath.Join(t.TempDir(), "analysis_output"),
		Stride:          35000,
		Concurrency:     2,
		ReporterOptions: []utils.ReporterOption{utils.WithPrintOutput(false)},
	}
}

func TestAnalyze(t *testing.T) {
	out := filepath.Join(t.TempDir(), "output_saturation")
	writeStructDir(t, filepath.Join(out, "1JTG_B49A", "01"), true)
	writeStructDir(t, filepath.Join(out, "1JTG_B49A", "02"), true)
	writeStructDir(t, filepath.Join(out, "1JTG_B49A", "03"), false)
	writeStructDir(t, filepath.Join(out, "1JTG_B49C", "01"), true)

	scores := &fakeScores{}
	a := newTestAnalyzer(t, scores)

	report, err := a.Analyze(context.Background(), out)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Len(t, scores.calls, 3)

	assert.Equal(t, []string{
		filepath.Join(a.OutputDir, "output_saturation-struct_scores_results.csv"),
		filepath.Join(a.OutputDir, "output_saturation-results.csv"),
	}, report.Files)
	for _, f := range report.Files {
		assert.FileExists(t, f)
	}

	assert.Len(t, report.StructScores, 3)

	// per job: ddG, ddG-gam, mut_dG, wt_dG
	require.Len(t, report.Results, 8)
	first := report.Results[0]
	assert.Equal(t, "1JTG_B49A", first.Case)
	assert.Equal(t, ScoredDDG, first.ScoredState)
	assert.Equal(t, 2, first.NStruct)
	assert.InDelta(t, 1.5, first.Terms[TotalScore], 1e-9)
	assert.Equal(t, "fa_talaris2014-gam", report.Results[1].ScoreFunction)
	assert.Equal(t, ScoredMutDG, report.Results[2].ScoredState)
	assert.Equal(t, ScoredWTDG, report.Results[3].ScoredState)
	assert.Equal(t, "1JTG_B49C", report.Results[4].Case)
}

func TestAnalyzeNoFinishedJobs(t *testing.T) {
	out := t.TempDir()
	writeStructDir(t, filepath.Join(out, "job", "01"), false)

	a := newTestAnalyzer(t, &fakeScores{})
	report, err := a.Analyze(context.Background(), out)
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.NoDirExists(t, a.OutputDir)
}

func TestAnalyzeFailsOnUnreadableDatabase(t *testing.T) {
	out := filepath.Join(t.TempDir(), "run")
	writeStructDir(t, filepath.Join(out, "job", "01"), true)
	writeStructDir(t, filepath.Join(out, "job", "02"), true)

	scores := &fakeScores{fail: map[string]bool{"02": true}}
	a := newTestAnalyzer(t, scores)
	report, err := a.Analyze(context.Background(), out)
	assert.ErrorContains(t, err, "1 of 2 score databases could not be read")
	assert.Nil(t, report)
	assert.NoDirExists(t, a.OutputDir)
}

func TestAnalyzeSkipsJobsWithoutFinishedStructures(t *testing.T) {
	out := filepath.Join(t.TempDir(), "run")
	writeStructDir(t, filepath.Join(out, "1JTG_B49A", "01"), true)
	writeStructDir(t, filepath.Join(out, "1JTG_B49C", "01"), false)

	scores := &fakeScores{}
	report, err := newTestAnalyzer(t, scores).Analyze(context.Background(), out)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Len(t, scores.calls, 1)
	assert.Len(t, report.StructScores, 1)

	// ddG, ddG-gam, mut_dG, wt_dG of the finished job only
	require.Len(t, report.Results, 4)
	for _, r := range report.Results {
		assert.Equal(t, "1JTG_B49A", r.Case)
	}
	for _, f := range report.Files {
		assert.FileExists(t, f)
	}
}

func TestAnalyzeMissingFolder(t *testing.T) {
	a := newTestAnalyzer(t, &fakeScores{})
	_, err := a.Analyze(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
