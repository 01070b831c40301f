// Package telemetry carries per-node run events to pluggable backends
// without ever blocking or failing the run that emits them.
package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leapstack-labs/leaprun/pkg/core"
)

// Event describes one finished node.
type Event struct {
	InvocationID    string
	Index           int
	Total           int
	ExecutionTime   time.Duration
	Status          string
	State           core.OutcomeState
	Skipped         bool
	Errored         bool
	Error           string
	Failures        int64
	Materialization string
	// NodeID is the hashed unique id of the node
	NodeID string
	// UniqueID is kept for local backends; it is never sent off the machine
	UniqueID    string
	ContentHash string
}

// Hash returns the hex sha256 of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// NewEvent builds the event for outcome.
func NewEvent(invocationID string, index, total int, outcome core.RunOutcome) Event {
	node := outcome.Node
	return Event{
		InvocationID:    invocationID,
		Index:           index,
		Total:           total,
		ExecutionTime:   outcome.ExecutionTime,
		Status:          outcome.Status,
		State:           outcome.State(),
		Skipped:         outcome.Skipped(),
		Errored:         outcome.Errored(),
		Error:           outcome.Error,
		Failures:        outcome.Failures,
		Materialization: node.Materialization(),
		NodeID:          Hash(node.UniqueID),
		UniqueID:        node.UniqueID,
		ContentHash:     Hash(node.RawSQL),
	}
}

// Sink accepts events. Track must not block.
type Sink interface {
	Track(Event)
}

// Backend receives events from an AsyncSink worker.
type Backend interface {
	Send(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

// Track implements Sink.
func (Nop) Track(Event) {}

// Config holds AsyncSink configuration.
type Config struct {
	// Buffer is the queue size; events beyond it are dropped
	Buffer   int
	Backends []Backend
	Logger   *slog.Logger
}

// AsyncSink queues events for one worker goroutine that fans them out to backends.
type AsyncSink struct {
	events   chan Event
	backends []Backend
	logger   *slog.Logger

	dropped atomic.Int64
	closed  atomic.Bool
	mu      sync.RWMutex // guards events against send after close
	done    chan struct{}
}

// NewAsyncSink starts the worker.
func NewAsyncSink(cfg Config) *AsyncSink {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	s := &AsyncSink{
		events:   make(chan Event, buffer),
		backends: cfg.Backends,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Track enqueues e, dropping it when the buffer is full or the sink is closed.
func (s *AsyncSink) Track(e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		s.dropped.Add(1)
		return
	}
	select {
	case s.events <- e:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting events and waits for queued events to be delivered.
func (s *AsyncSink) Close() error {
	s.mu.Lock()
	if !s.closed.Swap(true) {
		close(s.events)
	}
	s.mu.Unlock()
	<-s.done
	if n := s.dropped.Load(); n > 0 {
		s.logger.Debug("telemetry events dropped", "count", n)
	}
	return nil
}

func (s *AsyncSink) run() {
	defer close(s.done)
	ctx := context.Background()
	for e := range s.events {
		for _, b := range s.backends {
			if err := b.Send(ctx, e); err != nil {
				s.logger.Debug("telemetry backend failed", "error", err, "node", e.NodeID)
			}
		}
	}
}

// LogBackend writes events to a logger at debug level.
type LogBackend struct {
	Logger *slog.Logger
}

// Send implements Backend.
func (b LogBackend) Send(ctx context.Context, e Event) error {
	b.Logger.DebugContext(ctx, "node finished",
		"invocation_id", e.InvocationID,
		"index", e.Index,
		"total", e.Total,
		"node_id", e.NodeID,
		"status", e.Status,
		"state", e.State,
		"materialization", e.Materialization,
		"execution_time", e.ExecutionTime,
	)
	return nil
}

// StoreBackend records events as node runs in the state store.
type StoreBackend struct {
	Store core.Store
}

// Send implements Backend.
func (b StoreBackend) Send(_ context.Context, e Event) error {
	return b.Store.RecordNodeRun(&core.NodeRun{
		InvocationID:    e.InvocationID,
		NodeID:          e.UniqueID,
		State:           e.State,
		Status:          e.Status,
		Materialization: e.Materialization,
		Failures:        e.Failures,
		Error:           e.Error,
		ExecutionMS:     e.ExecutionTime.Milliseconds(),
	})
}
