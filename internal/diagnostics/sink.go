package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Kind classifies a diagnostic event.
type Kind string

const (
	// KindGrammarClamped: a species expansion had its iteration count lowered.
	KindGrammarClamped Kind = "grammar_clamped"
	// KindMalformedGrammar: an instance was skipped because its turtle stack
	// under- or overflowed.
	KindMalformedGrammar Kind = "malformed_grammar"
	// KindInstanceTruncated: a single instance hit the per-instance ceiling.
	KindInstanceTruncated Kind = "instance_truncated"
	// KindChunkTruncated: the chunk budget refused further instances.
	KindChunkTruncated Kind = "chunk_truncated"
	// KindChunkFailed: a chunk task returned an error or panicked.
	KindChunkFailed Kind = "chunk_failed"
)

// Event is a structured warning for operators tuning density and ceilings.
// Instance is -1 when the event concerns a whole chunk or species.
type Event struct {
	Kind      Kind   `json:"kind"`
	Chunk     string `json:"chunk,omitempty"`
	Instance  int    `json:"instance"`
	Species   string `json:"species,omitempty"`
	Reason    string `json:"reason"`
	Requested int64  `json:"requested"`
	Allowed   int64  `json:"allowed"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s chunk=%s instance=%d species=%s reason=%q requested=%d allowed=%d",
		e.Kind, e.Chunk, e.Instance, e.Species, e.Reason, e.Requested, e.Allowed)
}

// Sink receives diagnostic events. Implementations must be safe for
// concurrent use since chunks are generated on several workers.
type Sink interface {
	Report(Event)
}

// Discard drops every event.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Report(Event) {}

// LogSink writes events as slog warnings through the shared logger.
type LogSink struct{}

func (LogSink) Report(e Event) {
	Logger().LogAttrs(context.Background(), slog.LevelWarn, string(e.Kind),
		slog.String("chunk", e.Chunk),
		slog.Int("instance", e.Instance),
		slog.String("species", e.Species),
		slog.String("reason", e.Reason),
		slog.Int64("requested", e.Requested),
		slog.Int64("allowed", e.Allowed),
	)
}

// Recorder keeps every reported event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Report(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events in report order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of the given kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Multi fans each event out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return multiSink(filtered)
}

type multiSink []Sink

func (m multiSink) Report(e Event) {
	for _, s := range m {
		s.Report(e)
	}
}

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}
