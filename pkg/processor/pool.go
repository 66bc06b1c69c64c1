package processor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/utils"
)

// Task is one unit of work. Its Completion is handed to the pool's reporter.
type Task func(ctx context.Context) (utils.Completion, error)

// PoolResult summarizes a pool run.
type PoolResult struct {
	Submitted int
	Succeeded int
	Failed    int
	Skipped   int
	StartTime time.Time
	EndTime   time.Time
}

// Pool runs tasks on a fixed number of goroutines. Every task that runs
// advances the reporter exactly once, whether it succeeds or fails.
type Pool struct {
	ctx      context.Context
	group    *errgroup.Group
	reporter *utils.ProgressReporter

	mu     sync.Mutex
	result PoolResult
}

func NewPool(ctx context.Context, concurrency int, reporter *utils.ProgressReporter) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	g := &errgroup.Group{}
	g.SetLimit(concurrency)
	return &Pool{
		ctx:      ctx,
		group:    g,
		reporter: reporter,
		result:   PoolResult{StartTime: time.Now()},
	}
}

// Submit queues task, blocking while all workers are busy. Tasks submitted
// after the context is cancelled are skipped and removed from the
// reporter's total.
func (p *Pool) Submit(name string, task Task) {
	p.mu.Lock()
	p.result.Submitted++
	p.mu.Unlock()

	p.group.Go(func() error {
		if err := p.ctx.Err(); err != nil {
			logrus.Debugf("Skipping %s: %v", name, err)
			p.Skip()
			return nil
		}

		c, err := task(p.ctx)

		p.mu.Lock()
		if err != nil {
			p.result.Failed++
		} else {
			p.result.Succeeded++
		}
		p.mu.Unlock()

		if err != nil {
			logrus.Errorf("Error processing %s: %v", name, err)
			p.reporter.IncrementReport()
			return nil
		}
		p.reporter.Complete(c)
		return nil
	})
}

// Skip records an item that was counted in the reporter's total but will
// not run.
func (p *Pool) Skip() {
	p.mu.Lock()
	p.result.Skipped++
	p.mu.Unlock()
	p.reporter.DecrementTotalCount()
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() PoolResult {
	_ = p.group.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.EndTime = time.Now()
	return p.result
}
