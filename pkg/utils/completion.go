package utils

// CompletionKind identifies the payload carried by a Completion.
type CompletionKind int

const (
	// CompletionEmpty carries nothing worth keeping.
	CompletionEmpty CompletionKind = iota
	// CompletionKeyValue carries one keyed result.
	CompletionKeyValue
	// CompletionBatch carries a list of results.
	CompletionBatch
)

func (k CompletionKind) String() string {
	switch k {
	case CompletionEmpty:
		return "empty"
	case CompletionKeyValue:
		return "key_value"
	case CompletionBatch:
		return "batch"
	default:
		return "unknown"
	}
}

// Completion is what a finished work item hands back to its reporter.
type Completion struct {
	Kind  CompletionKind
	Key   string
	Value any
	Items []any
}

// Empty wraps a result that is not kept.
func Empty(value any) Completion {
	return Completion{Kind: CompletionEmpty, Value: value}
}

// KeyValue wraps a keyed result.
func KeyValue(key string, value any) Completion {
	return Completion{Kind: CompletionKeyValue, Key: key, Value: value}
}

// Batch wraps a list of results.
func Batch[T any](items []T) Completion {
	return Completion{Kind: CompletionBatch, Items: boxAll(items)}
}

// Complete routes c to the matching callback. Every call counts exactly one
// completed item.
func (p *ProgressReporter) Complete(c Completion) {
	switch c.Kind {
	case CompletionKeyValue:
		p.IncrementReportKeyValCallback(c.Key, c.Value)
	case CompletionBatch:
		p.IncrementReportListCallback(c.Items)
	default:
		p.IncrementReportCallback(c.Value)
	}
}

// KeyValCallback returns a typed IncrementReportKeyValCallback for p.
func KeyValCallback[V any](p *ProgressReporter) func(key string, value V) {
	return func(key string, value V) {
		p.IncrementReportKeyValCallback(key, value)
	}
}

// ListCallback returns a typed IncrementReportListCallback for p.
func ListCallback[T any](p *ProgressReporter) func(items []T) {
	return func(items []T) {
		p.IncrementReportListCallback(boxAll(items))
	}
}

// ListResultsAs returns the list results of p that have type T, in order.
func ListResultsAs[T any](p *ProgressReporter) []T {
	var out []T
	for _, item := range p.ListResults() {
		if v, ok := item.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func boxAll[T any](items []T) []any {
	boxed := make([]any, len(items))
	for i, item := range items {
		boxed[i] = item
	}
	return boxed
}
