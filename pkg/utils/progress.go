package utils

import (
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

const (
	reportInterval   = time.Second
	defaultWindowCap = 50
	etaLayout        = "2006-01-02 15:04:05"
)

// ProgressReporter tracks how many items of a batch have completed and prints
// a throttled status line with a smoothed ETA. All methods are safe for
// concurrent use.
type ProgressReporter struct {
	task    string
	entries string
	print   bool
	eol     string
	out     io.Writer
	now     func() time.Time

	mu             sync.Mutex
	startTime      time.Time
	lastReport     time.Time
	total          int
	totalSet       bool
	completed      int
	estimates      *rollingWindow
	maxLineWidth   int
	done           bool
	completionTime time.Time
	kvResults      map[string]any
	listResults    []any
	err            error
}

// ReporterOption configures a ProgressReporter.
type ReporterOption func(*ProgressReporter)

// WithEntries sets the unit label printed after the count. Default: "files".
func WithEntries(label string) ReporterOption {
	return func(p *ProgressReporter) { p.entries = label }
}

// WithPrintOutput enables or disables all printing. Default: true.
func WithPrintOutput(enabled bool) ReporterOption {
	return func(p *ProgressReporter) { p.print = enabled }
}

// WithLineTerminator sets the string written after each progress line.
// "\r" overwrites the line in place, "\n" appends. Default: "\r".
func WithLineTerminator(eol string) ReporterOption {
	return func(p *ProgressReporter) { p.eol = eol }
}

// WithOutput sets where progress lines are written. Default: os.Stdout.
func WithOutput(w io.Writer) ReporterOption {
	return func(p *ProgressReporter) { p.out = w }
}

func withClock(now func() time.Time) ReporterOption {
	return func(p *ProgressReporter) { p.now = now }
}

func NewProgressReporter(task string, opts ...ReporterOption) *ProgressReporter {
	p := &ProgressReporter{
		task:      task,
		entries:   "files",
		print:     true,
		eol:       "\r",
		out:       os.Stdout,
		now:       time.Now,
		estimates: newRollingWindow(defaultWindowCap),
		kvResults: make(map[string]any),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.startTime = p.now()
	p.lastReport = p.startTime
	if p.print {
		p.write("\nStarting " + task + "\n")
	}
	return p
}

// SetTotalCount records the expected number of items. The ETA window is
// resized to 5% of x (at least one sample) and previous samples are dropped.
func (p *ProgressReporter) SetTotalCount(x int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.totalSet {
		logrus.Warnf("Total count for %q set twice (%d -> %d)", p.task, p.total, x)
	}
	p.total = x
	p.totalSet = true
	p.estimates = newRollingWindow(max(1, int(0.05*float64(x))))
}

// DecrementTotalCount lowers a known, non-zero total by one.
func (p *ProgressReporter) DecrementTotalCount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.totalSet && p.total != 0 {
		p.total--
	}
}

// TotalCount returns the expected number of items and whether one was set.
func (p *ProgressReporter) TotalCount() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total, p.totalSet
}

// Completed returns the current completed count.
func (p *ProgressReporter) Completed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed
}

// Report sets the completed count to n and prints a status line if at least
// one report interval has passed since the last one.
func (p *ProgressReporter) Report(n int) {
	p.advance(func() { p.completed = n })
}

func (p *ProgressReporter) IncrementReport() {
	p.advance(func() { p.completed++ })
}

func (p *ProgressReporter) DecrementReport() {
	p.advance(func() { p.completed-- })
}

func (p *ProgressReporter) AddToReport(x int) {
	p.advance(func() { p.completed += x })
}

// IncrementReportCallback discards value and counts one completed item.
func (p *ProgressReporter) IncrementReportCallback(value any) {
	p.IncrementReport()
}

// IncrementReportKeyValCallback stores value under key, replacing any
// earlier value, and counts one completed item.
func (p *ProgressReporter) IncrementReportKeyValCallback(key string, value any) {
	p.advance(func() {
		p.kvResults[key] = value
		p.completed++
	})
}

// IncrementReportListCallback appends items to the list results and counts
// one completed item.
func (p *ProgressReporter) IncrementReportListCallback(items []any) {
	p.advance(func() {
		p.listResults = append(p.listResults, items...)
		p.completed++
	})
}

// KeyValResults returns a copy of the values collected by
// IncrementReportKeyValCallback.
func (p *ProgressReporter) KeyValResults() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.kvResults)
}

// ListResults returns a copy of the items collected by
// IncrementReportListCallback, in call order.
func (p *ProgressReporter) ListResults() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.listResults)
}

// Done marks the batch finished and prints a summary. Only the first call
// has any effect.
func (p *ProgressReporter) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	p.completionTime = p.now()
	if !p.print || p.err != nil {
		return
	}

	summary := fmt.Sprintf("Done %s, processed %d %s, took %s",
		p.task, p.completed, p.entries, FormatTimedelta(p.completionTime.Sub(p.startTime)))
	if p.eol == "\r" {
		summary = p.pad(summary, "")
	}
	p.write(summary + "\n\n")
}

// ElapsedTime returns the batch duration once Done was called, otherwise the
// time since the reporter was created.
func (p *ProgressReporter) ElapsedTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return p.completionTime.Sub(p.startTime)
	}
	return p.now().Sub(p.startTime)
}

// Err returns the first error encountered writing to the output. Once set,
// no further lines are written.
func (p *ProgressReporter) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *ProgressReporter) advance(step func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		logrus.Debugf("Ignoring progress update for finished task %q", p.task)
		return
	}
	step()

	now := p.now()
	if !p.print || p.err != nil || now.Sub(p.lastReport) < reportInterval {
		return
	}
	p.lastReport = now
	p.write(p.pad(p.statusLine(now), p.eol))
}

func (p *ProgressReporter) statusLine(now time.Time) string {
	line := fmt.Sprintf("  Processed: %d %s", p.completed, p.entries)
	if !p.totalSet || p.total == 0 {
		return line
	}

	percentDone := float64(p.completed) / float64(p.total)
	line += fmt.Sprintf(" (%.1f%%)", percentDone*100.0)
	if percentDone <= 0 {
		return line
	}

	elapsed := now.Sub(p.startTime).Seconds()
	p.estimates.push(elapsed / percentDone)
	remaining := p.estimates.mean() - elapsed
	eta := now.Add(secondsToDuration(remaining))

	return line + fmt.Sprintf(" ETA: %s Est. time remaining: %s",
		eta.Format(etaLayout), formatClock(truncSeconds(remaining)))
}

// pad right-fills text so that text+eol is at least as wide as the widest
// line written so far, and records new maxima.
func (p *ProgressReporter) pad(text, eol string) string {
	width := utf8.RuneCountInString(text) + utf8.RuneCountInString(eol)
	if width > p.maxLineWidth {
		p.maxLineWidth = width
	} else if width < p.maxLineWidth {
		text += strings.Repeat(" ", p.maxLineWidth-width)
	}
	return text + eol
}

func (p *ProgressReporter) write(s string) {
	if _, err := io.WriteString(p.out, s); err != nil {
		p.err = fmt.Errorf("write progress for %q: %w", p.task, err)
		return
	}
	if f, ok := p.out.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			p.err = fmt.Errorf("flush progress for %q: %w", p.task, err)
		}
	}
}

// truncSeconds drops the fractional part of s, saturating at the int64 range.
func truncSeconds(s float64) int64 {
	switch {
	case s >= math.MaxInt64:
		return math.MaxInt64
	case s <= math.MinInt64:
		return math.MinInt64
	}
	return int64(s)
}

func secondsToDuration(s float64) time.Duration {
	ns := s * float64(time.Second)
	switch {
	case ns >= math.MaxInt64:
		return time.Duration(math.MaxInt64)
	case ns <= math.MinInt64:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(ns)
}
