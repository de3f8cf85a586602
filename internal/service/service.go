// Package service combines the event, lifecycle and content layers into the
// operations exposed over HTTP.
package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"elementd/internal/content"
	"elementd/internal/events"
	"elementd/internal/lifecycle"
	"elementd/internal/transport"
	"elementd/pkg/types"
)

// Service owns one event manager, its lifecycle manager and a resolver.
type Service struct {
	events    *events.Manager
	lifecycle *lifecycle.Manager
	resolver  *content.Resolver
	transport transport.Transport
	fetch     content.ResolveOptions
	log       zerolog.Logger
	started   time.Time
	ready     atomic.Bool
}

func New(cfg Config) *Service {
	s := &Service{
		fetch:   cfg.Fetch,
		log:     zerolog.Nop(),
		started: time.Now(),
	}
	if cfg.Logger != nil {
		s.log = *cfg.Logger
	}
	if cfg.Events.Logger == nil {
		cfg.Events.Logger = &s.log
	}
	if cfg.Resolver.Logger == nil {
		cfg.Resolver.Logger = &s.log
	}
	s.events = events.NewManager(cfg.Events)
	s.lifecycle = lifecycle.NewWithConfig(s.events, lifecycle.ManagerConfig{Publisher: cfg.Publisher, Logger: &s.log})
	s.resolver = content.NewResolver(cfg.Resolver)
	s.transport = cfg.Transport
	if s.transport == nil {
		s.transport = transport.NewUnimplemented()
	}
	return s
}

// Events exposes the event manager.
func (s *Service) Events() *events.Manager { return s.events }

// Lifecycle exposes the lifecycle manager.
func (s *Service) Lifecycle() *lifecycle.Manager { return s.lifecycle }

// Resolver exposes the content resolver.
func (s *Service) Resolver() *content.Resolver { return s.resolver }

// Seed creates, registers and activates each element, then marks the
// service ready. It stops at the first failure.
func (s *Service) Seed(ctx context.Context, els []types.Element) error {
	for _, el := range els {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.CreateElement(ctx, el, true); err != nil {
			return err
		}
	}
	s.ready.Store(true)
	s.log.Info().Int("elements", len(els)).Msg("seeded elements")
	return nil
}

// MarkReady flips readiness without seeding.
func (s *Service) MarkReady() { s.ready.Store(true) }

func (s *Service) Ready() bool { return s.ready.Load() }

func (s *Service) status(id string) types.ElementStatus {
	el, _ := s.events.Element(id)
	st, _ := s.lifecycle.State(id)
	return types.ElementStatus{Element: el, State: string(st)}
}

func (s *Service) ListElements() []types.ElementStatus {
	els := s.events.Elements()
	out := make([]types.ElementStatus, 0, len(els))
	for _, el := range els {
		st, _ := s.lifecycle.State(el.ID)
		out = append(out, types.ElementStatus{Element: el, State: string(st)})
	}
	return out
}

func (s *Service) GetElement(id string) (types.ElementStatus, error) {
	if _, ok := s.events.Element(id); !ok {
		return types.ElementStatus{}, notFound(id)
	}
	return s.status(id), nil
}

// CreateElement validates, creates and registers el, activating it when asked.
func (s *Service) CreateElement(_ context.Context, el types.Element, activate bool) (types.ElementStatus, error) {
	if err := el.Validate(); err != nil {
		return types.ElementStatus{}, invalid(err)
	}
	if _, exists := s.events.Element(el.ID); exists {
		return types.ElementStatus{}, conflict(el.ID)
	}
	created, err := s.lifecycle.CreateElement(el.ID, el.Kind, el.Content, el.Metadata)
	if err != nil {
		return types.ElementStatus{}, err
	}
	if err := s.lifecycle.RegisterElement(created); err != nil {
		return types.ElementStatus{}, err
	}
	if activate {
		if _, err := s.lifecycle.ActivateElement(el.ID); err != nil {
			return types.ElementStatus{}, err
		}
	}
	return s.status(el.ID), nil
}

func (s *Service) DeleteElement(id string) error {
	ok, err := s.lifecycle.DestroyElement(id)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(id)
	}
	return nil
}

func (s *Service) ActivateElement(id string) (types.ElementStatus, error) {
	return s.move(id, s.lifecycle.ActivateElement)
}

func (s *Service) SuspendElement(id string) (types.ElementStatus, error) {
	return s.move(id, s.lifecycle.SuspendElement)
}

func (s *Service) move(id string, fn func(string) (bool, error)) (types.ElementStatus, error) {
	ok, err := fn(id)
	if err != nil {
		return types.ElementStatus{}, err
	}
	if !ok {
		return types.ElementStatus{}, notFound(id)
	}
	return s.status(id), nil
}

// UpdateContent overlays the request onto the element's current content and
// sends it through the lifecycle gate.
func (s *Service) UpdateContent(ctx context.Context, id string, req types.UpdateContentRequest) (types.SendEventResponse, error) {
	el, ok := s.events.Element(id)
	if !ok {
		return types.SendEventResponse{}, notFound(id)
	}
	next := el.Content.Clone()
	if req.Primary != nil {
		next.Primary = *req.Primary
	}
	if req.Source != nil {
		src := *req.Source
		next.Source = &src
	}
	if req.Alternatives != nil {
		next.Alternatives = append([]types.PayloadSource(nil), req.Alternatives...)
	}
	if req.Primary != nil || req.Source != nil || req.Alternatives != nil {
		probe := types.Element{ID: id, Content: next}
		if err := probe.Validate(); err != nil {
			return types.SendEventResponse{}, invalid(err)
		}
	}
	return s.lifecycle.UpdateElementContent(ctx, id, next, lifecycle.UpdateOptions{
		Priority:          req.Priority,
		PersistChange:     req.PersistChange,
		TriggerTransforms: req.TriggerTransforms,
		ValidateFirst:     req.ValidateFirst,
	})
}

func (s *Service) UpdateProps(ctx context.Context, id string, req types.UpdatePropsRequest) (types.SendEventResponse, error) {
	return s.lifecycle.UpdateElementProperties(ctx, id, req.Props, lifecycle.UpdateOptions{Priority: req.Priority})
}

// ResolveContent negotiates and loads content for a registered element.
func (s *Service) ResolveContent(ctx context.Context, id string, caps types.Capabilities) (types.RenderingContent, error) {
	el, ok := s.events.Element(id)
	if !ok {
		return types.RenderingContent{}, notFound(id)
	}
	if err := caps.Validate(); err != nil {
		return types.RenderingContent{}, invalid(err)
	}
	return s.resolver.Render(ctx, el, content.RenderContext{
		Capabilities: caps,
		OnError: func(err error) {
			s.log.Warn().Err(err).Str("element", id).Msg("content resolution failed")
		},
	}, s.fetch)
}

// Negotiate reports the selected representation and every candidate's score.
func (s *Service) Negotiate(id string, caps types.Capabilities) (types.NegotiateResponse, error) {
	el, ok := s.events.Element(id)
	if !ok {
		return types.NegotiateResponse{}, notFound(id)
	}
	if err := caps.Validate(); err != nil {
		return types.NegotiateResponse{}, invalid(err)
	}
	sel := s.resolver.Selector()
	out := types.NegotiateResponse{Candidates: sel.Rank(el, caps)}
	if best, ok := sel.SelectBest(el, caps); ok {
		out.Selected = &best
	}
	return out, nil
}

// History returns recent processed events for id. Unknown ids with no
// recorded history are not found.
func (s *Service) History(id string, limit int) ([]types.HistoryEntry, error) {
	entries := s.events.History(id, limit)
	if len(entries) == 0 {
		if _, ok := s.events.Element(id); !ok {
			return nil, notFound(id)
		}
	}
	if entries == nil {
		entries = []types.HistoryEntry{}
	}
	return entries, nil
}

func (s *Service) SendEvent(ctx context.Context, ev types.ElementEvent) (types.SendEventResponse, error) {
	return s.events.SendEvent(ctx, ev)
}

func (s *Service) SendBatchEvents(ctx context.Context, evs []types.ElementEvent) (types.BatchEventsResponse, error) {
	return s.events.SendBatchEvents(ctx, evs)
}

func (s *Service) Status() types.StatusResponse {
	es := s.events.Stats()
	ls := s.lifecycle.Stats()
	rs := s.resolver.Stats()
	states := make(map[string]int, len(ls.ByState))
	for st, n := range ls.ByState {
		states[string(st)] = n
	}
	now := time.Now()
	return types.StatusResponse{
		Elements:        es.Elements,
		States:          states,
		QueueLen:        es.QueueLen,
		MaxQueueSize:    es.MaxQueueSize,
		Flushing:        es.Flushing,
		HistoryLen:      es.HistoryLen,
		EventsProcessed: es.Processed,
		EventsFailed:    es.Failed,
		EventsRejected:  es.Rejected,
		EventsDeduped:   es.Deduped,
		CacheEntries:    rs.CacheEntries,
		CacheHits:       rs.Hits,
		CacheMisses:     rs.Misses,
		ResolveFailures: rs.Failures,
		Transport:       string(s.transport.Stats().State),
		UptimeSeconds:   int64(now.Sub(s.started).Seconds()),
		ServerTimeUnix:  now.Unix(),
	}
}

// Close tears down every manager. Later calls fail with a destroyed error.
func (s *Service) Close() {
	s.ready.Store(false)
	s.transport.Destroy()
	s.lifecycle.Destroy()
	s.events.Destroy()
	s.resolver.Cache().Clear()
}
