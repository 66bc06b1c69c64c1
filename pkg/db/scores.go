package db

import (
	"cmp"
	"database/sql"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/analysis"
)

const scoresQuery = `
	SELECT batches.name, structure_scores.struct_id, score_types.score_type_name,
		structure_scores.score_value, score_function_method_options.score_function_name
	FROM structure_scores
	INNER JOIN batches ON batches.batch_id = structure_scores.batch_id
	INNER JOIN score_function_method_options ON score_function_method_options.batch_id = batches.batch_id
	INNER JOIN score_types ON score_types.batch_id = structure_scores.batch_id
		AND score_types.score_type_id = structure_scores.score_type_id`

const reportSuffix = "_dbreport"

// ReadScores reads the per-structure scores a flex ddG run stored in its
// ddG.db3 database. Structure ids are renumbered to backrub step counts:
// each saved checkpoint contributes one structure per batch, so id k belongs
// to checkpoint (k-1)/batches and step stride*(checkpoint+1).
//
// The result has one row per (state, backrub steps, score function); a score
// term reported more than once for the same row is averaged.
func ReadScores(path string, structNum int, caseName string, stride int) ([]analysis.Row, error) {
	dsn, err := sqliteDSN(path, url.Values{"mode": {"ro"}})
	if err != nil {
		return nil, fmt.Errorf("open score db: %w", err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open score db: %w", err)
	}
	defer db.Close()

	var numBatches sql.NullInt64
	if err := db.QueryRow(`SELECT max(batch_id) FROM batches`).Scan(&numBatches); err != nil {
		return nil, fmt.Errorf("%s: count batches: %w", path, err)
	}
	if !numBatches.Valid || numBatches.Int64 < 1 {
		return nil, fmt.Errorf("%s: no batches recorded", path)
	}

	rows, err := db.Query(scoresQuery)
	if err != nil {
		return nil, fmt.Errorf("%s: query scores: %w", path, err)
	}
	defer rows.Close()

	type cellKey struct {
		state, scoreFunction string
		steps                int
	}
	type cell struct {
		sum   map[string]float64
		count map[string]int
	}
	cells := make(map[cellKey]*cell)

	for rows.Next() {
		var (
			name, scoreType, scoreFunction string
			structID                       int64
			value                          float64
		)
		if err := rows.Scan(&name, &structID, &scoreType, &value, &scoreFunction); err != nil {
			return nil, fmt.Errorf("%s: scan score: %w", path, err)
		}
		key := cellKey{
			state:         strings.TrimSuffix(name, reportSuffix),
			scoreFunction: scoreFunction,
			steps:         stride * int(1+(structID-1)/numBatches.Int64),
		}
		c, ok := cells[key]
		if !ok {
			c = &cell{sum: make(map[string]float64), count: make(map[string]int)}
			cells[key] = c
		}
		c.sum[scoreType] += value
		c.count[scoreType]++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: read scores: %w", path, err)
	}

	out := make([]analysis.Row, 0, len(cells))
	for key, c := range cells {
		terms := make(map[string]float64, len(c.sum))
		for term, sum := range c.sum {
			terms[term] = sum / float64(c.count[term])
		}
		out = append(out, analysis.Row{
			Case:          caseName,
			State:         key.state,
			BackrubSteps:  key.steps,
			StructNum:     structNum,
			ScoreFunction: key.scoreFunction,
			Terms:         terms,
		})
	}
	slices.SortFunc(out, func(a, b analysis.Row) int {
		return cmp.Or(
			cmp.Compare(a.State, b.State),
			cmp.Compare(a.BackrubSteps, b.BackrubSteps),
			cmp.Compare(a.ScoreFunction, b.ScoreFunction),
		)
	})
	return out, nil
}
