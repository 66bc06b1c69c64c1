package analysis

import (
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// SummaryRows is how many results per scored state the summary shows.
const SummaryRows = 20

var (
	styleSummaryTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#3478F6", Dark: "#4A9EFF"})
	styleSummaryHeader = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	styleSummaryCell   = lipgloss.NewStyle().Padding(0, 1)
	styleSummaryEmpty  = lipgloss.NewStyle().Italic(true)
)

var summaryColumns = []string{"backrub_steps", "case_name", "nstruct", "score_function_name", "scored_state", TotalScore}

// WriteSummary prints the first rows of the mut_dG, wt_dG and ddG results.
func WriteSummary(w io.Writer, results []Result) error {
	var b strings.Builder
	for _, scored := range []string{ScoredMutDG, ScoredWTDG, ScoredDDG} {
		b.WriteString(styleSummaryTitle.Render(scored))
		b.WriteString("\n")
		b.WriteString(RenderSummaryTable(selectScored(results, scored, SummaryRows)))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func selectScored(results []Result, scored string, limit int) []Result {
	var out []Result
	for _, r := range results {
		if r.ScoredState != scored {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out
}

// RenderSummaryTable renders results as a bordered table with a bold header.
// Numeric columns are right aligned.
func RenderSummaryTable(results []Result) string {
	if len(results) == 0 {
		return styleSummaryEmpty.Render("(no results)") + "\n"
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		total := ""
		if v, ok := r.Terms[TotalScore]; ok {
			total = strconv.FormatFloat(v, 'f', 5, 64)
		}
		rows = append(rows, []string{
			strconv.Itoa(r.BackrubSteps),
			r.Case,
			strconv.Itoa(r.NStruct),
			r.ScoreFunction,
			r.ScoredState,
			total,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(summaryColumns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := styleSummaryCell
			if row == 0 {
				style = styleSummaryHeader
			}
			if numericColumn(col) {
				style = style.Align(lipgloss.Right)
			}
			return style
		})
	return t.String() + "\n"
}

func numericColumn(i int) bool {
	switch summaryColumns[i] {
	case "backrub_steps", "nstruct", TotalScore:
		return true
	}
	return false
}
