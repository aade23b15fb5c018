package events

import (
	"context"
	"errors"
	"time"

	weathererrors "github.com/dmrolfs/weatherzone/pkg/errors"
	"github.com/dmrolfs/weatherzone/pkg/metrics"
	"go.uber.org/zap"
)

// Aggregate is the generic contract a consistency boundary implements: a pure
// Apply that advances in-memory state, and a Handle that validates a command
// against the current state and proposes events without mutating it.
//
// S is the aggregate's state type, C its command type, E its event type.
type Aggregate[S any, C any, E any] interface {
	AggregateType() string
	Apply(state S, event E) S
	Handle(ctx context.Context, state S, cmd C) ([]E, error)
}

// StoredEvent is what an Aggregate's Codec turns an E into for persistence.
type StoredEvent struct {
	EventType    string
	EventVersion string
	Payload      []byte
}

// PersistedEvent is a row as read back from the EventStore.
type PersistedEvent struct {
	AggregateType string
	AggregateID   string
	Sequence      int64
	EventType     string
	EventVersion  string
	Payload       []byte
	Metadata      map[string]string
	RecordedAt    time.Time
}

// Codec converts an aggregate's typed events to and from the self-describing
// (event_type, event_version, payload) form the EventStore persists.
type Codec[E any] interface {
	Encode(e E) (StoredEvent, error)
	Decode(p PersistedEvent) (E, error)
}

// EventStore is the persistence port every Runtime is wired against. It
// appends events under optimistic concurrency and replays an aggregate's
// history.
type EventStore interface {
	Append(ctx context.Context, aggregateType, aggregateID string, expectedSeq int64, events []StoredEvent, metadata map[string]string) error
	Load(ctx context.Context, aggregateType, aggregateID string) ([]PersistedEvent, error)
}

// Query receives every batch of events committed for one aggregate instance,
// in registration order. Query implementations must not block the commit
// path for long; errors are logged and do not fail the command.
type Query[E any] interface {
	Dispatch(ctx context.Context, aggregateID string, events []EventEnvelope[E]) error
}

// Runtime hosts one Aggregate kind: it loads state by replay, invokes Handle,
// appends the resulting events under optimistic concurrency (retrying a
// bounded number of times on conflict), applies them locally, and dispatches
// them to every registered Query.
type Runtime[S any, C any, E any] struct {
	agg        Aggregate[S, C, E]
	store      EventStore
	codec      Codec[E]
	queries    []Query[E]
	log        *zap.Logger
	maxRetries int
}

// NewRuntime constructs a Runtime for agg backed by store, using codec to
// (de)serialize events. maxRetries bounds the load-handle-append retry loop
// on optimistic-concurrency conflict (0 selects the default of 3).
func NewRuntime[S any, C any, E any](agg Aggregate[S, C, E], store EventStore, codec Codec[E], log *zap.Logger, maxRetries int) *Runtime[S, C, E] {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime[S, C, E]{agg: agg, store: store, codec: codec, log: log, maxRetries: maxRetries}
}

// AddQuery registers a Query to receive every future batch of committed
// events for this aggregate kind, in registration order.
func (r *Runtime[S, C, E]) AddQuery(q Query[E]) {
	r.queries = append(r.queries, q)
}

// replay loads and folds an aggregate's full event history into its zero-value state.
func (r *Runtime[S, C, E]) replay(ctx context.Context, aggregateID string) (S, int64, error) {
	var state S
	persisted, err := r.store.Load(ctx, r.agg.AggregateType(), aggregateID)
	if err != nil {
		return state, 0, weathererrors.ErrPersistence
	}
	var seq int64
	for _, p := range persisted {
		evt, decErr := r.codec.Decode(p)
		if decErr != nil {
			return state, 0, decErr
		}
		state = r.agg.Apply(state, evt)
		seq = p.Sequence
	}
	return state, seq, nil
}

// Execute runs one command against the aggregate identified by aggregateID,
// making up to maxRetries attempts in all while appends hit AggregateConflict.
func (r *Runtime[S, C, E]) Execute(ctx context.Context, aggregateID string, cmd C) ([]E, error) {
	return r.ExecuteWithMetadata(ctx, aggregateID, cmd, nil)
}

// ExecuteWithMetadata is Execute, additionally attaching metadata to the
// appended event rows (e.g. saga correlation ids).
func (r *Runtime[S, C, E]) ExecuteWithMetadata(ctx context.Context, aggregateID string, cmd C, metadata map[string]string) ([]E, error) {
	aggType := r.agg.AggregateType()
	cmdName := commandNameOf(cmd)
	var lastErr error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		state, seq, err := r.replay(ctx, aggregateID)
		if err != nil {
			metrics.CommandsTotal.WithLabelValues(aggType, cmdName, "error").Inc()
			return nil, err
		}

		events, err := r.agg.Handle(ctx, state, cmd)
		if err != nil {
			metrics.CommandsTotal.WithLabelValues(aggType, cmdName, "rejected").Inc()
			return nil, err
		}
		if len(events) == 0 {
			metrics.CommandsTotal.WithLabelValues(aggType, cmdName, "noop").Inc()
			return nil, nil
		}

		stored := make([]StoredEvent, len(events))
		for i, e := range events {
			se, encErr := r.codec.Encode(e)
			if encErr != nil {
				return nil, encErr
			}
			stored[i] = se
		}

		if err := r.store.Append(ctx, aggType, aggregateID, seq, stored, metadata); err != nil {
			if !errors.Is(err, weathererrors.ErrAggregateConflict) {
				metrics.CommandsTotal.WithLabelValues(aggType, cmdName, "error").Inc()
				return nil, err
			}
			lastErr = err
			r.log.Warn("aggregate append conflict, retrying",
				zap.String("aggregate_type", aggType),
				zap.String("aggregate_id", aggregateID),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		metrics.CommandsTotal.WithLabelValues(aggType, cmdName, "ok").Inc()
		for i := range events {
			metrics.EventsTotal.WithLabelValues(aggType, stored[i].EventType).Inc()
		}

		envelopes := make([]EventEnvelope[E], len(events))
		for i, e := range events {
			envelopes[i] = NewEventEnvelope(aggregateID, e, metadata)
		}
		r.dispatch(ctx, aggregateID, envelopes)

		return events, nil
	}

	r.log.Error("aggregate conflict exhausted retries",
		zap.String("aggregate_type", aggType),
		zap.String("aggregate_id", aggregateID),
		zap.Error(lastErr))
	return nil, weathererrors.ErrAggregateConflict
}

// Load replays and returns an aggregate's current state, for read-side use
// (e.g. view rebuild or diagnostics) without invoking Handle.
func (r *Runtime[S, C, E]) Load(ctx context.Context, aggregateID string) (S, error) {
	state, _, err := r.replay(ctx, aggregateID)
	return state, err
}

func (r *Runtime[S, C, E]) dispatch(ctx context.Context, aggregateID string, envelopes []EventEnvelope[E]) {
	for _, q := range r.queries {
		if err := q.Dispatch(ctx, aggregateID, envelopes); err != nil {
			r.log.Warn("query dispatch failed", zap.String("aggregate_id", aggregateID), zap.Error(err))
		}
	}
}

// CommandNamer lets a command type label itself in metrics. Commands that
// don't implement it are counted under "unknown".
type CommandNamer interface {
	CommandName() string
}

func commandNameOf(cmd any) string {
	if n, ok := cmd.(CommandNamer); ok {
		return n.CommandName()
	}
	return "unknown"
}
