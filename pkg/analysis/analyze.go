package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/processor"
	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/rosetta"
	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/utils"
)

// ScoreReader loads the score rows of one structure directory's ddG.db3.
type ScoreReader func(path string, structNum int, caseName string, stride int) ([]Row, error)

// Analyzer aggregates the scores of finished flex ddG runs.
type Analyzer struct {
	ReadScores  ScoreReader
	OutputDir   string
	Stride      int
	Concurrency int
	Compress    string

	// ReporterOptions configure the progress reporter used while reading
	// score databases.
	ReporterOptions []utils.ReporterOption
}

// Report is the outcome of analyzing one output folder.
type Report struct {
	StructScores []StructScore
	Results      []Result
	Files        []string
}

// Analyze reads the scores of every finished structure below outputFolder,
// computes ddG, its GAM reweighting and both dG values per job, and writes
// the results to CSV files named after outputFolder. A nil report and nil
// error mean no job has finished yet. If any finished structure's scores
// cannot be read, nothing is written and an error is returned.
func (a *Analyzer) Analyze(ctx context.Context, outputFolder string) (*Report, error) {
	jobs, err := processor.FindFinishedJobs(outputFolder)
	if err != nil {
		return nil, fmt.Errorf("find finished jobs: %w", err)
	}
	var structCount int
	for _, job := range jobs {
		structCount += len(job.StructDirs)
	}
	if structCount == 0 {
		logrus.Info("No finished jobs found")
		return nil, nil
	}

	scores, err := a.readAll(ctx, jobs, structCount)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, job := range jobs {
		var rows []Row
		for _, dir := range job.StructDirs {
			rows = append(rows, scores[dir]...)
		}
		if len(rows) == 0 {
			logrus.Warnf("No scores for job %s", job.Dir)
			continue
		}

		ddg, structScores := CalcDDG(rows)
		gam, err := ApplyZemuGAM(ddg)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", job.Dir, err)
		}
		report.StructScores = append(report.StructScores, structScores...)
		report.Results = append(report.Results, ddg...)
		report.Results = append(report.Results, gam...)
		report.Results = append(report.Results, CalcDGs(rows)...)
	}

	if err := os.MkdirAll(a.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create analysis directory: %w", err)
	}
	base := filepath.Base(filepath.Clean(outputFolder))

	structPath := filepath.Join(a.OutputDir, base+"-struct_scores_results.csv")
	structPath, err = WriteStructScoresCSV(structPath, report.StructScores, a.Compress)
	if err != nil {
		return nil, err
	}
	resultsPath := filepath.Join(a.OutputDir, base+"-results.csv")
	resultsPath, err = WriteResultsCSV(resultsPath, report.Results, a.Compress)
	if err != nil {
		return nil, err
	}
	report.Files = []string{structPath, resultsPath}
	logrus.Infof("Wrote %s and %s", structPath, resultsPath)
	return report, nil
}

// readAll reads every structure directory's scores on the worker pool and
// returns them keyed by directory.
func (a *Analyzer) readAll(ctx context.Context, jobs []processor.FinishedJob, structCount int) (map[string][]Row, error) {
	opts := append([]utils.ReporterOption{utils.WithEntries("structures")}, a.ReporterOptions...)
	reporter := utils.NewProgressReporter("reading score databases", opts...)
	reporter.SetTotalCount(structCount)
	pool := processor.NewPool(ctx, a.Concurrency, reporter)

	for _, job := range jobs {
		caseName := filepath.Base(job.Dir)
		for _, dir := range job.StructDirs {
			structNum, err := strconv.Atoi(filepath.Base(dir))
			if err != nil {
				logrus.Warnf("Skipping %s: directory name is not a structure number", dir)
				pool.Skip()
				continue
			}
			pool.Submit(dir, func(ctx context.Context) (utils.Completion, error) {
				rows, err := a.ReadScores(filepath.Join(dir, rosetta.ScoreDBFile), structNum, caseName, a.Stride)
				if err != nil {
					return utils.Completion{}, err
				}
				return utils.KeyValue(dir, rows), nil
			})
		}
	}

	result := pool.Wait()
	reporter.Done()
	if err := reporter.Err(); err != nil {
		return nil, fmt.Errorf("write progress: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if result.Failed > 0 {
		return nil, fmt.Errorf("%d of %d score databases could not be read", result.Failed, result.Submitted)
	}

	scores := make(map[string][]Row)
	for dir, v := range reporter.KeyValResults() {
		scores[dir] = v.([]Row)
	}
	return scores, nil
}
