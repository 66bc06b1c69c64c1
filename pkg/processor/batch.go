package processor

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/rosetta"
	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/utils"
)

// JobJournal records job outcomes so reruns can skip finished work.
type JobJournal interface {
	IsCompleted(key, fingerprint string) (bool, error)
	Begin(key, fingerprint, outputDir string) (int64, error)
	Finish(id int64, exitCode int, runErr error) error
}

// Batch runs flex ddG jobs.
type Batch struct {
	Runner      rosetta.Runner
	Params      rosetta.Params
	Journal     JobJournal // optional
	Concurrency int
	DryRun      bool
}

// Run executes jobs on the pool and reports progress to reporter. Jobs the
// journal already saw complete with the same fingerprint are skipped. In
// dry-run mode each command is logged and nothing runs. Exit codes of the
// jobs that ran are collected in the reporter's key/value results.
func (b *Batch) Run(ctx context.Context, jobs []*rosetta.FlexDDGJob, reporter *utils.ProgressReporter) PoolResult {
	reporter.SetTotalCount(len(jobs))
	pool := NewPool(ctx, b.Concurrency, reporter)

	for _, job := range jobs {
		if ctx.Err() != nil {
			pool.Skip()
			continue
		}
		if b.alreadyCompleted(job) {
			logrus.Debugf("Skipping completed job %s", job.Key())
			pool.Skip()
			continue
		}
		if b.DryRun {
			logrus.Infof("Dry run: %s", job.Command(b.Params))
			pool.Skip()
			continue
		}

		pool.Submit(job.Key(), func(ctx context.Context) (utils.Completion, error) {
			return b.runOne(ctx, job)
		})
	}

	return pool.Wait()
}

func (b *Batch) alreadyCompleted(job *rosetta.FlexDDGJob) bool {
	if b.Journal == nil {
		return false
	}
	done, err := b.Journal.IsCompleted(job.Key(), job.Fingerprint(b.Params))
	if err != nil {
		logrus.Warnf("Could not check journal for %s: %v", job.Key(), err)
		return false
	}
	return done
}

func (b *Batch) runOne(ctx context.Context, job *rosetta.FlexDDGJob) (utils.Completion, error) {
	var id int64
	if b.Journal != nil {
		var err error
		id, err = b.Journal.Begin(job.Key(), job.Fingerprint(b.Params), job.OutputDir)
		if err != nil {
			logrus.Warnf("Could not journal job %s: %v", job.Key(), err)
			id = 0
		}
	}

	code, runErr := rosetta.RunJob(ctx, b.Runner, job, b.Params)

	if b.Journal != nil && id != 0 {
		if err := b.Journal.Finish(id, code, runErr); err != nil {
			logrus.Warnf("Could not record result of job %s: %v", job.Key(), err)
		}
	}

	if runErr != nil {
		return utils.Completion{}, runErr
	}
	if code != 0 {
		return utils.Completion{}, fmt.Errorf("rosetta_scripts exited with code %d, see %s", code, job.LogPath())
	}
	return utils.KeyValue(job.Key(), code), nil
}

// ExtractAll runs the extractor over every struct.db3 file. Each file's
// exit code is appended to the reporter's list results.
func ExtractAll(ctx context.Context, extractor *rosetta.Extractor, dbs []string, concurrency int, reporter *utils.ProgressReporter) PoolResult {
	reporter.SetTotalCount(len(dbs))
	pool := NewPool(ctx, concurrency, reporter)

	for _, path := range dbs {
		if ctx.Err() != nil {
			pool.Skip()
			continue
		}
		pool.Submit(path, func(ctx context.Context) (utils.Completion, error) {
			code, err := extractor.Extract(ctx, path)
			if err != nil {
				return utils.Completion{}, err
			}
			if code != 0 {
				logrus.Warnf("score_jd2 exited with code %d for %s", code, path)
			}
			return utils.Batch([]int{code}), nil
		})
	}

	return pool.Wait()
}
