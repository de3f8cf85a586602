package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"elementd/internal/common/listeners"
	"elementd/internal/events"
	"elementd/pkg/types"
)

// EventManager is the subset of *events.Manager the lifecycle layer drives.
type EventManager interface {
	RegisterElement(el types.Element) error
	UnregisterElement(id string) (bool, error)
	SendEvent(ctx context.Context, ev types.ElementEvent) (types.SendEventResponse, error)
	Subscribe(elementID string, fn events.Subscriber) (func(), error)
}

// Subscriber receives lifecycle transitions.
type Subscriber func(Event)

// ManagerConfig tunes a Manager.
type ManagerConfig struct {
	Publisher EventPublisher
	Logger    *zerolog.Logger
	// Source stamped on events the manager sends. Defaults to "lifecycle".
	Source string
}

const defaultSource = "lifecycle"

// UpdateOptions are forwarded onto the event built by an update call.
type UpdateOptions struct {
	Priority          types.Priority
	Source            string
	PersistChange     bool
	TriggerTransforms bool
	ValidateFirst     bool
}

// Stats is a read-only projection over the state map.
type Stats struct {
	Total   int
	ByState map[State]int
}

// Manager owns the per-element state machine.
type Manager struct {
	mu         sync.RWMutex
	em         EventManager
	states     map[string]State
	subs       listeners.Set[Subscriber]
	updateSubs map[string]map[string]func()
	pub        EventPublisher
	source     string
	destroyed  bool
	log        zerolog.Logger
	now        func() time.Time
}

// New wraps em with default configuration.
func New(em EventManager) *Manager { return NewWithConfig(em, ManagerConfig{}) }

func NewWithConfig(em EventManager, cfg ManagerConfig) *Manager {
	m := &Manager{
		em:         em,
		states:     make(map[string]State),
		updateSubs: make(map[string]map[string]func()),
		pub:        noopPublisher{},
		source:     defaultSource,
		log:        zerolog.Nop(),
		now:        time.Now,
	}
	if cfg.Publisher != nil {
		m.pub = cfg.Publisher
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	}
	if cfg.Source != "" {
		m.source = cfg.Source
	}
	return m
}

// SetEventPublisher replaces the publisher; nil restores the no-op default.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == nil {
		p = noopPublisher{}
	}
	m.pub = p
}

// CreateElement builds an element and puts its id in StateCreated,
// replacing any previous lifecycle for that id.
func (m *Manager) CreateElement(id, kind string, content types.ElementContent, metadata map[string]any) (types.Element, error) {
	el := types.Element{ID: id, Kind: kind, Content: content, Metadata: metadata}
	if _, err := m.transition(id, StateCreated, EventCreated, nil); err != nil {
		return types.Element{}, err
	}
	return el.Clone(), nil
}

// RegisterElement hands el to the event manager. Registered or active
// elements are left alone.
func (m *Manager) RegisterElement(el types.Element) error {
	m.mu.RLock()
	if m.destroyed {
		m.mu.RUnlock()
		return ErrDestroyed
	}
	cur := m.states[el.ID]
	m.mu.RUnlock()
	if cur == StateRegistered || cur == StateActive {
		return nil
	}
	if err := m.em.RegisterElement(el); err != nil {
		return err
	}
	_, err := m.transition(el.ID, StateRegistered, EventRegistered, nil)
	return err
}

// ActivateElement reports false for unknown or destroyed elements.
func (m *Manager) ActivateElement(id string) (bool, error) {
	return m.transition(id, StateActive, EventActivated, func(cur State) (bool, bool) {
		switch cur {
		case "", StateDestroyed:
			return false, false
		case StateActive:
			return true, false
		}
		return true, true
	})
}

// SuspendElement reports false for unknown or destroyed elements.
func (m *Manager) SuspendElement(id string) (bool, error) {
	return m.transition(id, StateSuspended, EventSuspended, func(cur State) (bool, bool) {
		if cur == "" || cur == StateDestroyed {
			return false, false
		}
		return true, true
	})
}

// UpdateElementContent sends an updatePayload event carrying content. The
// element passes through StateUpdating and lands in StateActive when the
// event is accepted or StateError when it is not. Unknown, suspended and
// destroyed elements are refused without a state change. The error is
// non-nil only after Destroy.
func (m *Manager) UpdateElementContent(ctx context.Context, id string, content types.ElementContent, opts UpdateOptions) (types.SendEventResponse, error) {
	var refused bool
	if _, err := m.transition(id, StateUpdating, EventUpdating, func(cur State) (bool, bool) {
		refused = !cur.acceptsUpdates()
		return !refused, !refused
	}); err != nil {
		return types.SendEventResponse{}, err
	}
	if refused {
		return types.SendEventResponse{
			ElementID: id,
			Code:      types.SendNotAvailable,
			Errors:    []string{fmt.Sprintf("Element %s %s", id, ErrNotAvailable)},
		}, nil
	}

	ev := m.buildEvent(id, types.EventUpdatePayload, map[string]any{"content": content.Clone()}, opts)
	res, err := m.em.SendEvent(ctx, ev)
	if err != nil {
		m.log.Warn().Err(err).Str("element", id).Msg("content update failed")
		res = types.SendEventResponse{ElementID: id, Code: types.SendFailed, Errors: []string{err.Error()}}
	}
	if !res.Success {
		if _, terr := m.transition(id, StateError, EventFailed, nil); terr != nil {
			return res, terr
		}
		return res, nil
	}
	if _, terr := m.transition(id, StateActive, EventUpdated, nil); terr != nil {
		return res, terr
	}
	return res, nil
}

// UpdateElementProperties sends an updateProps event without consulting the
// element's state.
func (m *Manager) UpdateElementProperties(ctx context.Context, id string, props map[string]any, opts UpdateOptions) (types.SendEventResponse, error) {
	if m.isDestroyed() {
		return types.SendEventResponse{}, ErrDestroyed
	}
	return m.em.SendEvent(ctx, m.buildEvent(id, types.EventUpdateProps, map[string]any{"props": props}, opts))
}

// DestroyElement unregisters the element and drops its update subscribers.
// It reports false for unknown or already destroyed elements.
func (m *Manager) DestroyElement(id string) (bool, error) {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return false, ErrDestroyed
	}
	cur := m.states[id]
	if cur == "" || cur == StateDestroyed {
		m.mu.Unlock()
		return false, nil
	}
	unsubs := m.updateSubs[id]
	delete(m.updateSubs, id)
	m.mu.Unlock()

	if _, err := m.em.UnregisterElement(id); err != nil {
		m.log.Warn().Err(err).Str("element", id).Msg("unregister during destroy")
	}
	for _, fn := range unsubs {
		fn()
	}
	return m.transition(id, StateDestroyed, EventDestroyed, nil)
}

// SubscribeToElementUpdates forwards event notifications for one element
// until the element is destroyed or the returned func is called.
func (m *Manager) SubscribeToElementUpdates(id string, fn events.Subscriber) (func(), error) {
	if m.isDestroyed() {
		return nil, ErrDestroyed
	}
	unsub, err := m.em.Subscribe(id, fn)
	if err != nil {
		return nil, err
	}
	key := uuid.NewString()
	m.mu.Lock()
	if m.updateSubs[id] == nil {
		m.updateSubs[id] = make(map[string]func())
	}
	m.updateSubs[id][key] = unsub
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		_, live := m.updateSubs[id][key]
		delete(m.updateSubs[id], key)
		m.mu.Unlock()
		if live {
			unsub()
		}
	}, nil
}

// Subscribe registers fn for every transition of every element.
func (m *Manager) Subscribe(fn Subscriber) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return nil, ErrDestroyed
	}
	id := m.subs.Add(fn)
	return func() {
		m.mu.Lock()
		m.subs.Remove(id)
		m.mu.Unlock()
	}, nil
}

// State returns the current state of id.
func (m *Manager) State(id string) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[id]
	return s, ok
}

// ElementsByState returns the sorted ids currently in s.
func (m *Manager) ElementsByState(s State) []string {
	m.mu.RLock()
	var out []string
	for id, cur := range m.states {
		if cur == s {
			out = append(out, id)
		}
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{Total: len(m.states), ByState: make(map[State]int, len(States))}
	for _, s := range States {
		st.ByState[s] = 0
	}
	for _, s := range m.states {
		st.ByState[s]++
	}
	return st
}

// Destroy drops all state and subscribers. Every later call returns ErrDestroyed.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	var unsubs []func()
	for _, byKey := range m.updateSubs {
		for _, fn := range byKey {
			unsubs = append(unsubs, fn)
		}
	}
	m.states = make(map[string]State)
	m.subs = listeners.Set[Subscriber]{}
	m.updateSubs = make(map[string]map[string]func())
	m.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}
}

func (m *Manager) isDestroyed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.destroyed
}

func (m *Manager) buildEvent(id string, et types.EventType, data map[string]any, opts UpdateOptions) types.ElementEvent {
	src := opts.Source
	if src == "" {
		src = m.source
	}
	return types.ElementEvent{
		ElementID:         id,
		EventType:         et,
		Data:              data,
		Metadata:          types.EventMetadata{Timestamp: m.now(), Source: src, Priority: opts.Priority},
		PersistChange:     opts.PersistChange,
		TriggerTransforms: opts.TriggerTransforms,
		ValidateFirst:     opts.ValidateFirst,
	}
}

// transition moves id to next under the lock and emits the change. guard,
// when set, sees the current state and returns (ok, apply): apply=false
// leaves the state untouched and emits nothing.
func (m *Manager) transition(id string, next State, et EventType, guard func(cur State) (ok, apply bool)) (bool, error) {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return false, ErrDestroyed
	}
	prev := m.states[id]
	if guard != nil {
		ok, apply := guard(prev)
		if !apply {
			m.mu.Unlock()
			return ok, nil
		}
	}
	m.states[id] = next
	pub := m.pub
	fns := m.subs.Snapshot()
	m.mu.Unlock()

	e := Event{ElementID: id, EventType: et, PreviousState: prev, NewState: next, Timestamp: m.now()}
	pub.Publish(e)
	for _, fn := range fns {
		m.safeNotify(fn, e)
	}
	return true, nil
}

func (m *Manager) safeNotify(fn Subscriber, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			m.log.Error().Interface("panic", rec).Str("element", e.ElementID).Str("event_type", string(e.EventType)).Msg("lifecycle subscriber panicked")
		}
	}()
	fn(e)
}
