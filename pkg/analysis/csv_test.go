package analysis

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string, compressed bool) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := csv.NewReader(f)
	if compressed {
		dec, err := zstd.NewReader(f)
		require.NoError(t, err)
		defer dec.Close()
		r = csv.NewReader(dec)
	}
	records, err := r.ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteResultsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out-results.csv")
	results := []Result{
		{Case: "1JTG_B49A", BackrubSteps: 35000, ScoreFunction: "fa_talaris2014", ScoredState: ScoredDDG, NStruct: 10,
			Terms: map[string]float64{TotalScore: 1.25, "fa_atr": -0.5}},
		{Case: "1JTG_B49C", BackrubSteps: 35000, ScoreFunction: "fa_talaris2014", ScoredState: ScoredDDG, NStruct: 10,
			Terms: map[string]float64{TotalScore: 2}},
	}

	written, err := WriteResultsCSV(path, results, "")
	require.NoError(t, err)
	assert.Equal(t, path, written)

	records := readCSV(t, written, false)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"case_name", "backrub_steps", "score_function_name", "scored_state", "nstruct", "fa_atr", "total_score"}, records[0])
	assert.Equal(t, []string{"1JTG_B49A", "35000", "fa_talaris2014", "ddG", "10", "-0.5", "1.25"}, records[1])
	assert.Equal(t, []string{"1JTG_B49C", "35000", "fa_talaris2014", "ddG", "10", "", "2"}, records[2])
}

func TestWriteStructScoresCSVZstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out-struct_scores_results.csv")
	scores := []StructScore{
		{Case: "1JTG_B49A", BackrubSteps: 2500, StructNum: 3, ScoreFunction: "fa_talaris2014",
			Terms: map[string]float64{TotalScore: -3.75}},
	}

	written, err := WriteStructScoresCSV(path, scores, CompressZstd)
	require.NoError(t, err)
	assert.Equal(t, path+".zst", written)
	assert.NoFileExists(t, path)

	records := readCSV(t, written, true)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"case_name", "backrub_steps", "struct_num", "score_function_name", "total_score"}, records[0])
	assert.Equal(t, []string{"1JTG_B49A", "2500", "3", "fa_talaris2014", "-3.75"}, records[1])
}

func TestWriteCSVUnsupportedCompression(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.csv")
	_, err := WriteResultsCSV(path, nil, "gzip")
	assert.ErrorContains(t, err, "gzip")
	assert.NoFileExists(t, path)
}
