package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"elementd/internal/common/listeners"
	"elementd/pkg/types"
)

// DefaultMaxHistorySize applies when ManagerConfig.MaxHistorySize is unset.
const DefaultMaxHistorySize = 100

// systemSource marks notifications synthesized by the manager itself.
const systemSource = "system"

// NotificationKind distinguishes registry changes from applied events.
type NotificationKind string

const (
	NotifyRegistered   NotificationKind = "registered"
	NotifyUnregistered NotificationKind = "unregistered"
	NotifyEvent        NotificationKind = "event"
)

// Notification is delivered to subscribers.
type Notification struct {
	Kind      NotificationKind
	ElementID string
	Source    string
	Timestamp time.Time
	// Set for NotifyEvent.
	Event  *types.ElementEvent
	Result *EventResult
}

// Subscriber receives notifications synchronously on the dispatching goroutine.
type Subscriber func(Notification)

// BatchSubscriber receives every flushed batch result.
type BatchSubscriber func(BatchResult)

// ValidationResult is returned by a ValidateFunc.
type ValidationResult struct {
	IsValid bool
	Errors  []string
}

// ValidateFunc is an optional hook consulted before an event is enqueued.
type ValidateFunc func(ctx context.Context, ev types.ElementEvent) ValidationResult

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Queue          QueueConfig
	MaxHistorySize int
	Validate       ValidateFunc
	// ManualFlush disables the queue timer; callers drain with Tick.
	ManualFlush bool
	Logger      *zerolog.Logger
}

// DefaultManagerConfig returns the stock configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{Queue: DefaultQueueConfig(), MaxHistorySize: DefaultMaxHistorySize}
}

// Manager owns registered elements and applies events to them.
type Manager struct {
	mu          sync.RWMutex
	elements    map[string]types.Element
	subscribers map[string]*listeners.Set[Subscriber]
	global      listeners.Set[Subscriber]
	batchSubs   listeners.Set[BatchSubscriber]
	history     *ring
	queue       *Queue
	validate    ValidateFunc
	destroyed   bool
	log         zerolog.Logger
	now         func() time.Time

	processed atomic.Uint64
	failed    atomic.Uint64
}

// NewManager constructs a Manager. Unless cfg.ManualFlush is set, queued
// events are applied on a background timer.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.MaxHistorySize <= 0 {
		cfg.MaxHistorySize = DefaultMaxHistorySize
	}
	m := &Manager{
		elements:    make(map[string]types.Element),
		subscribers: make(map[string]*listeners.Set[Subscriber]),
		history:     newRing(cfg.MaxHistorySize),
		validate:    cfg.Validate,
		log:         zerolog.Nop(),
		now:         time.Now,
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	}
	if cfg.Queue.Logger == nil {
		cfg.Queue.Logger = &m.log
	}
	var onDue func()
	if !cfg.ManualFlush {
		onDue = func() { m.Tick(context.Background()) }
	}
	m.queue = NewQueue(cfg.Queue, onDue)
	return m
}

func (m *Manager) isDestroyed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.destroyed
}

// RegisterElement stores el, replacing any element with the same id, and
// notifies subscribers directly (not through the queue).
func (m *Manager) RegisterElement(el types.Element) error {
	if el.ID == "" {
		return fmt.Errorf("register: element id is required")
	}
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return ErrDestroyed
	}
	m.elements[el.ID] = el.Clone()
	m.mu.Unlock()
	m.notify(Notification{Kind: NotifyRegistered, ElementID: el.ID, Source: systemSource, Timestamp: m.now()})
	return nil
}

// UnregisterElement removes the element and its element-scoped subscribers.
// It reports false when id was unknown.
func (m *Manager) UnregisterElement(id string) (bool, error) {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return false, ErrDestroyed
	}
	if _, ok := m.elements[id]; !ok {
		m.mu.Unlock()
		return false, nil
	}
	delete(m.elements, id)
	delete(m.subscribers, id)
	m.mu.Unlock()
	m.notify(Notification{Kind: NotifyUnregistered, ElementID: id, Source: systemSource, Timestamp: m.now()})
	return true, nil
}

// Element returns a copy of the registered element.
func (m *Manager) Element(id string) (types.Element, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	el, ok := m.elements[id]
	if !ok {
		return types.Element{}, false
	}
	return el.Clone(), true
}

// Elements returns copies of all registered elements sorted by id.
func (m *Manager) Elements() []types.Element {
	m.mu.RLock()
	out := make([]types.Element, 0, len(m.elements))
	for _, el := range m.elements {
		out = append(out, el.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SendEvent validates and enqueues ev. Success acknowledges acceptance only;
// the change is applied when the queue is drained. The error is non-nil only
// after Destroy.
func (m *Manager) SendEvent(ctx context.Context, ev types.ElementEvent) (types.SendEventResponse, error) {
	if m.isDestroyed() {
		return types.SendEventResponse{}, ErrDestroyed
	}
	if m.validate != nil {
		if vr := m.validate(ctx, ev); !vr.IsValid {
			return types.SendEventResponse{ElementID: ev.ElementID, Code: types.SendInvalid, Errors: vr.Errors}, nil
		}
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Metadata.Timestamp.IsZero() {
		ev.Metadata.Timestamp = m.now()
	}
	if ev.Metadata.Priority == "" {
		ev.Metadata.Priority = types.PriorityNormal
	}
	m.mu.RLock()
	_, ok := m.elements[ev.ElementID]
	m.mu.RUnlock()
	if !ok {
		return types.SendEventResponse{ElementID: ev.ElementID, Code: types.SendNotFound, Errors: []string{fmt.Sprintf("Element %s not found", ev.ElementID)}}, nil
	}
	queuedID, err := m.queue.Enqueue(ev)
	if err != nil {
		if IsDestroyed(err) {
			return types.SendEventResponse{}, err
		}
		code := types.SendQueueFull
		if errors.Is(err, ErrUnknownPriority) {
			code = types.SendUnknownPriority
		}
		return types.SendEventResponse{ElementID: ev.ElementID, Code: code, Errors: []string{err.Error()}}, nil
	}
	if ev.Metadata.Priority == types.PriorityImmediate {
		m.queue.ForceFlush()
	}
	return types.SendEventResponse{Success: true, ElementID: ev.ElementID, EventID: queuedID, UpdatedAt: m.now()}, nil
}

// SendBatchEvents sends each event in order and partitions the outcomes.
func (m *Manager) SendBatchEvents(ctx context.Context, evs []types.ElementEvent) (types.BatchEventsResponse, error) {
	out := types.BatchEventsResponse{Successful: []types.SendEventResponse{}, Failed: []types.SendEventResponse{}}
	for _, ev := range evs {
		res, err := m.SendEvent(ctx, ev)
		if err != nil {
			return out, err
		}
		if res.Success {
			out.Successful = append(out.Successful, res)
		} else {
			out.Failed = append(out.Failed, res)
		}
	}
	return out, nil
}

// Tick drains the queue once and applies the batch.
func (m *Manager) Tick(ctx context.Context) BatchResult {
	if m.isDestroyed() {
		return BatchResult{}
	}
	res := m.queue.Flush(ctx, m.process)
	if res.TotalEvents > 0 {
		m.log.Debug().Int("total", res.TotalEvents).Int("failed", len(res.Failed)).Dur("dur", res.ProcessingTime).Msg("flush")
		m.notifyBatch(res)
	}
	return res
}

// ForceFlush asks the queue timer to fire immediately.
func (m *Manager) ForceFlush() { m.queue.ForceFlush() }

func (m *Manager) process(ctx context.Context, batch []types.ElementEvent) BatchResult {
	var res BatchResult
	for i := range batch {
		ev := batch[i]
		r := m.apply(ev)
		m.record(ev, r)
		if r.Success {
			m.processed.Add(1)
			res.Successful = append(res.Successful, r)
		} else {
			m.failed.Add(1)
			res.Failed = append(res.Failed, r)
		}
		m.notify(Notification{Kind: NotifyEvent, ElementID: ev.ElementID, Source: ev.Metadata.Source, Timestamp: r.AppliedAt, Event: &ev, Result: &r})
	}
	return res
}

// apply executes one event against the registry.
func (m *Manager) apply(ev types.ElementEvent) EventResult {
	r := EventResult{EventID: ev.ID, ElementID: ev.ElementID, EventType: ev.EventType, AppliedAt: m.now()}
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.elements[ev.ElementID]
	if !ok {
		r.Err = fmt.Errorf("%w: %s", ErrElementNotFound, ev.ElementID)
		return r
	}
	switch ev.EventType {
	case types.EventUpdateProps:
		raw, present := ev.Data["props"]
		props, isMap := raw.(map[string]any)
		if present && raw != nil && !isMap {
			r.Err = fmt.Errorf("updateProps: props must be an object, got %T", raw)
			return r
		}
		next := el.Clone()
		if next.Metadata == nil {
			next.Metadata = make(map[string]any, len(props))
		}
		for k, v := range props {
			next.Metadata[k] = v
		}
		m.elements[ev.ElementID] = next
	case types.EventUpdatePayload:
		// Accepted and recorded; element content is left unchanged.
	case types.EventUpdateVariants, types.EventUpdateStyle, types.EventRefreshTransforms, types.EventValidateContent:
	default:
		r.Err = fmt.Errorf("%w: %q", ErrUnknownEventType, ev.EventType)
		return r
	}
	r.Success = true
	return r
}

func (m *Manager) record(ev types.ElementEvent, r EventResult) {
	e := types.HistoryEntry{Event: ev, Success: r.Success, RecordedAt: r.AppliedAt}
	if r.Err != nil {
		e.Error = r.Err.Error()
	}
	m.mu.Lock()
	m.history.push(e)
	m.mu.Unlock()
}

// History returns up to limit recent entries for elementID, oldest first.
// Empty elementID selects all elements; limit <= 0 means no limit.
func (m *Manager) History(elementID string, limit int) []types.HistoryEntry {
	m.mu.RLock()
	all := m.history.entries()
	m.mu.RUnlock()
	out := all[:0]
	for _, e := range all {
		if elementID == "" || e.Event.ElementID == elementID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Subscribe registers fn for notifications about one element.
func (m *Manager) Subscribe(elementID string, fn Subscriber) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return nil, ErrDestroyed
	}
	subs := m.subscribers[elementID]
	if subs == nil {
		subs = &listeners.Set[Subscriber]{}
		m.subscribers[elementID] = subs
	}
	id := subs.Add(fn)
	return func() {
		m.mu.Lock()
		// A re-registered element starts a fresh set; handles are per set.
		if s := m.subscribers[elementID]; s == subs {
			s.Remove(id)
			if s.Len() == 0 {
				delete(m.subscribers, elementID)
			}
		}
		m.mu.Unlock()
	}, nil
}

// SubscribeAll registers fn for notifications about every element.
func (m *Manager) SubscribeAll(fn Subscriber) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return nil, ErrDestroyed
	}
	id := m.global.Add(fn)
	return func() {
		m.mu.Lock()
		m.global.Remove(id)
		m.mu.Unlock()
	}, nil
}

// SubscribeBatch registers fn for every non-empty flush result.
func (m *Manager) SubscribeBatch(fn BatchSubscriber) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return nil, ErrDestroyed
	}
	id := m.batchSubs.Add(fn)
	return func() {
		m.mu.Lock()
		m.batchSubs.Remove(id)
		m.mu.Unlock()
	}, nil
}

// notify calls element-scoped subscribers, then global ones. Subscribers run
// outside the lock; a panicking subscriber is logged and skipped.
func (m *Manager) notify(n Notification) {
	m.mu.RLock()
	var fns []Subscriber
	if s := m.subscribers[n.ElementID]; s != nil {
		fns = s.Snapshot()
	}
	fns = append(fns, m.global.Snapshot()...)
	m.mu.RUnlock()
	for _, fn := range fns {
		m.safeNotify(fn, n)
	}
}

func (m *Manager) safeNotify(fn Subscriber, n Notification) {
	defer func() {
		if rec := recover(); rec != nil {
			ev := m.log.Error().Interface("panic", rec).Str("element", n.ElementID).Str("kind", string(n.Kind))
			if n.Event != nil {
				ev = ev.Str("event_type", string(n.Event.EventType))
			}
			ev.Msg("subscriber panicked")
		}
	}()
	fn(n)
}

func (m *Manager) notifyBatch(res BatchResult) {
	m.mu.RLock()
	fns := m.batchSubs.Snapshot()
	m.mu.RUnlock()
	for _, fn := range fns {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					m.log.Error().Interface("panic", rec).Msg("batch subscriber panicked")
				}
			}()
			fn(res)
		}()
	}
}

// ManagerStats is a read-only projection for status reporting.
type ManagerStats struct {
	Elements     int
	Subscribers  int
	QueueLen     int
	MaxQueueSize int
	Flushing     bool
	HistoryLen   int
	Processed    uint64
	Failed       uint64
	Rejected     uint64
	Deduped      uint64
}

func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	st := ManagerStats{
		Elements:   len(m.elements),
		HistoryLen: m.history.len(),
	}
	for _, s := range m.subscribers {
		st.Subscribers += s.Len()
	}
	st.Subscribers += m.global.Len()
	m.mu.RUnlock()
	qs := m.queue.Stats()
	st.QueueLen = m.queue.Size()
	st.MaxQueueSize = m.queue.MaxSize()
	st.Flushing = m.queue.IsProcessing()
	st.Processed = m.processed.Load()
	st.Failed = m.failed.Load()
	st.Rejected = qs.Rejected
	st.Deduped = qs.Deduped
	return st
}

// Queue exposes the underlying queue.
func (m *Manager) Queue() *Queue { return m.queue }

// Destroy tears the manager down. Every later mutating call returns ErrDestroyed.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	m.elements = make(map[string]types.Element)
	m.subscribers = make(map[string]*listeners.Set[Subscriber])
	m.global = listeners.Set[Subscriber]{}
	m.batchSubs = listeners.Set[BatchSubscriber]{}
	m.history = newRing(m.history.cap())
	m.mu.Unlock()
	m.queue.Destroy()
}
