package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"elementd/pkg/types"
)

// Defaults applied when corresponding QueueConfig fields are unset.
const (
	DefaultMaxQueueSize  = 1000
	DefaultFlushInterval = 50 * time.Millisecond
)

// QueueConfig tunes a Queue.
type QueueConfig struct {
	MaxQueueSize  int
	FlushInterval time.Duration
	// PriorityLevels are the accepted lanes in drain order. Values outside
	// the four known priorities are ignored.
	PriorityLevels    []types.Priority
	DeduplicateEvents bool
	Logger            *zerolog.Logger
}

// DefaultQueueConfig returns the stock configuration with deduplication on.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxQueueSize:      DefaultMaxQueueSize,
		FlushInterval:     DefaultFlushInterval,
		PriorityLevels:    append([]types.Priority(nil), types.Priorities...),
		DeduplicateEvents: true,
	}
}

// EventResult is the outcome of applying one event.
type EventResult struct {
	EventID   string
	ElementID string
	EventType types.EventType
	Success   bool
	Err       error
	AppliedAt time.Time
}

// BatchResult summarizes one flush.
type BatchResult struct {
	Successful     []EventResult
	Failed         []EventResult
	TotalEvents    int
	ProcessingTime time.Duration
}

// Processor applies a drained batch.
type Processor func(ctx context.Context, batch []types.ElementEvent) BatchResult

// Queue is a priority-laned, deduplicating, capacity-bounded event buffer.
type Queue struct {
	mu         sync.Mutex
	cfg        QueueConfig
	order      []types.Priority
	lanes      map[types.Priority][]*types.ElementEvent
	index      map[string]*types.ElementEvent
	size       int
	timer      *time.Timer
	timerGen   uint64
	processing bool
	destroyed  bool
	onDue      func()
	log        zerolog.Logger

	enqueued atomic.Uint64
	rejected atomic.Uint64
	deduped  atomic.Uint64
}

// NewQueue builds a queue. onDue is called from a timer goroutine once
// FlushInterval has elapsed after an enqueue; nil disables the timer.
func NewQueue(cfg QueueConfig, onDue func()) *Queue {
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = DefaultMaxQueueSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	q := &Queue{
		cfg:   cfg,
		lanes: make(map[types.Priority][]*types.ElementEvent),
		index: make(map[string]*types.ElementEvent),
		onDue: onDue,
		log:   zerolog.Nop(),
	}
	if cfg.Logger != nil {
		q.log = *cfg.Logger
	}
	levels := cfg.PriorityLevels
	if len(levels) == 0 {
		levels = types.Priorities
	}
	for _, p := range levels {
		if !p.Valid() {
			continue
		}
		if _, dup := q.lanes[p]; dup {
			continue
		}
		q.order = append(q.order, p)
		q.lanes[p] = nil
	}
	return q
}

// Enqueue adds ev to its lane, or merges it into a pending event with the same
// dedup key. It returns the id of the event that will be applied: ev.ID, or
// the pending event's id after a merge. It never evicts: a full queue rejects
// the newcomer.
func (q *Queue) Enqueue(ev types.ElementEvent) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.destroyed {
		return "", ErrDestroyed
	}
	if _, ok := q.lanes[ev.Metadata.Priority]; !ok {
		q.rejected.Add(1)
		q.log.Warn().Str("element", ev.ElementID).Str("priority", string(ev.Metadata.Priority)).Msg("event dropped: unknown priority")
		return "", ErrUnknownPriority
	}
	if q.size >= q.cfg.MaxQueueSize {
		q.rejected.Add(1)
		q.log.Warn().Str("element", ev.ElementID).Int("size", q.size).Msg("event dropped: queue full")
		return "", ErrQueueFull
	}
	if q.cfg.DeduplicateEvents {
		if existing, ok := q.index[ev.DedupKey()]; ok {
			if existing.Data == nil && len(ev.Data) > 0 {
				existing.Data = make(map[string]any, len(ev.Data))
			}
			for k, v := range ev.Data {
				existing.Data[k] = v
			}
			if ev.Metadata.Timestamp.After(existing.Metadata.Timestamp) {
				existing.Metadata.Timestamp = ev.Metadata.Timestamp
			}
			q.deduped.Add(1)
			q.scheduleLocked(q.cfg.FlushInterval)
			return existing.ID, nil
		}
	}
	cp := ev.Clone()
	p := ev.Metadata.Priority
	q.lanes[p] = append(q.lanes[p], &cp)
	if q.cfg.DeduplicateEvents {
		q.index[ev.DedupKey()] = &cp
	}
	q.size++
	q.enqueued.Add(1)
	q.scheduleLocked(q.cfg.FlushInterval)
	return cp.ID, nil
}

// Flush drains every lane in priority order and hands the batch to processor.
// If a flush is already running it returns an empty result without waiting.
func (q *Queue) Flush(ctx context.Context, processor Processor) BatchResult {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return BatchResult{}
	}
	q.stopTimerLocked()
	batch := q.drainLocked()
	if len(batch) == 0 {
		q.mu.Unlock()
		return BatchResult{}
	}
	q.processing = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.processing = false
		// Events that arrived mid-flush start the next batch.
		if q.size > 0 {
			q.scheduleLocked(q.cfg.FlushInterval)
		}
		q.mu.Unlock()
	}()

	start := time.Now()
	res := processor(ctx, batch)
	res.TotalEvents = len(batch)
	res.ProcessingTime = time.Since(start)
	return res
}

// drainLocked empties lanes and the dedup index before processing so that
// concurrent enqueues land in a fresh batch.
func (q *Queue) drainLocked() []types.ElementEvent {
	if q.size == 0 {
		return nil
	}
	batch := make([]types.ElementEvent, 0, q.size)
	for _, p := range q.order {
		for _, ev := range q.lanes[p] {
			batch = append(batch, *ev)
		}
		q.lanes[p] = nil
	}
	q.index = make(map[string]*types.ElementEvent)
	q.size = 0
	return batch
}

// ForceFlush collapses the pending wait so the next flush fires right away.
// It cannot cancel or hurry a flush already running.
func (q *Queue) ForceFlush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.destroyed || q.processing || q.size == 0 {
		return
	}
	q.stopTimerLocked()
	q.scheduleLocked(0)
}

func (q *Queue) scheduleLocked(d time.Duration) {
	if q.onDue == nil || q.timer != nil || q.processing || q.destroyed {
		return
	}
	q.timerGen++
	gen := q.timerGen
	q.timer = time.AfterFunc(d, func() { q.fire(gen) })
}

func (q *Queue) fire(gen uint64) {
	q.mu.Lock()
	if gen != q.timerGen || q.timer == nil {
		q.mu.Unlock()
		return
	}
	q.timer = nil
	q.mu.Unlock()
	q.onDue()
}

func (q *Queue) stopTimerLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
		q.timerGen++
	}
}

// Size is the number of pending events.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// LaneSizes reports pending events per lane.
func (q *Queue) LaneSizes() map[types.Priority]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[types.Priority]int, len(q.order))
	for _, p := range q.order {
		out[p] = len(q.lanes[p])
	}
	return out
}

// IsProcessing reports whether a flush is in flight.
func (q *Queue) IsProcessing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}

// MaxSize is the configured capacity.
func (q *Queue) MaxSize() int { return q.cfg.MaxQueueSize }

// Clear drops pending events and cancels the timer.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopTimerLocked()
	for _, p := range q.order {
		q.lanes[p] = nil
	}
	q.index = make(map[string]*types.ElementEvent)
	q.size = 0
}

// Destroy clears the queue and rejects further enqueues.
func (q *Queue) Destroy() {
	q.Clear()
	q.mu.Lock()
	q.destroyed = true
	q.mu.Unlock()
}

// QueueStats are cumulative counters.
type QueueStats struct {
	Enqueued, Rejected, Deduped uint64
}

func (q *Queue) Stats() QueueStats {
	return QueueStats{Enqueued: q.enqueued.Load(), Rejected: q.rejected.Load(), Deduped: q.deduped.Load()}
}
