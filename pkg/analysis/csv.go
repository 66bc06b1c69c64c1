package analysis

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/klauspost/compress/zstd"
)

// CompressZstd selects zstd compression for CSV output.
const CompressZstd = "zstd"

// WriteStructScoresCSV writes per-structure scores to path and returns the
// path actually written, which gains a ".zst" suffix when compressed.
func WriteStructScoresCSV(path string, scores []StructScore, compress string) (string, error) {
	terms := TermNames(scores, func(s StructScore) map[string]float64 { return s.Terms })
	header := append([]string{"case_name", "backrub_steps", "struct_num", "score_function_name"}, terms...)

	records := make([][]string, 0, len(scores))
	for _, s := range scores {
		rec := []string{s.Case, strconv.Itoa(s.BackrubSteps), strconv.Itoa(s.StructNum), s.ScoreFunction}
		records = append(records, appendTerms(rec, s.Terms, terms))
	}
	return writeCSV(path, header, records, compress)
}

// WriteResultsCSV writes averaged results to path and returns the path
// actually written, which gains a ".zst" suffix when compressed.
func WriteResultsCSV(path string, results []Result, compress string) (string, error) {
	terms := TermNames(results, func(r Result) map[string]float64 { return r.Terms })
	header := append([]string{"case_name", "backrub_steps", "score_function_name", "scored_state", "nstruct"}, terms...)

	records := make([][]string, 0, len(results))
	for _, r := range results {
		rec := []string{r.Case, strconv.Itoa(r.BackrubSteps), r.ScoreFunction, r.ScoredState, strconv.Itoa(r.NStruct)}
		records = append(records, appendTerms(rec, r.Terms, terms))
	}
	return writeCSV(path, header, records, compress)
}

// appendTerms appends the values of terms in order; a term the row lacks is
// written as an empty cell.
func appendTerms(rec []string, values map[string]float64, terms []string) []string {
	for _, t := range terms {
		v, ok := values[t]
		if !ok {
			rec = append(rec, "")
			continue
		}
		rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return rec
}

func writeCSV(path string, header []string, records [][]string, compress string) (string, error) {
	switch compress {
	case "":
	case CompressZstd:
		path += ".zst"
	default:
		return "", fmt.Errorf("unsupported compression %q", compress)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	var w io.Writer = f
	var enc *zstd.Encoder
	if compress == CompressZstd {
		enc, err = zstd.NewWriter(f, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return "", fmt.Errorf("create zstd encoder: %w", err)
		}
		w = enc
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := cw.WriteAll(records); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return "", fmt.Errorf("finish zstd stream %s: %w", path, err)
		}
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}
