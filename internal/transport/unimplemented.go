package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"elementd/internal/events"
	"elementd/pkg/types"
)

// Unimplemented satisfies Transport but refuses to talk to any peer. It keeps
// connection state and listener bookkeeping so callers can be wired and
// tested before a real protocol exists.
type Unimplemented struct {
	mu           sync.Mutex
	state        ConnectionState
	stateSubs    map[string]func(ConnectionState)
	errSubs      map[string]func(error)
	eventsFailed uint64
}

var _ Transport = (*Unimplemented)(nil)

func NewUnimplemented() *Unimplemented {
	return &Unimplemented{
		state:     StateDisconnected,
		stateSubs: make(map[string]func(ConnectionState)),
		errSubs:   make(map[string]func(error)),
	}
}

// Connect moves through connecting to error and reports ErrNotImplemented.
func (u *Unimplemented) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.closed() {
		return ErrClosed
	}
	u.setState(StateConnecting)
	u.setState(StateError)
	u.raise(ErrNotImplemented)
	return ErrNotImplemented
}

func (u *Unimplemented) Disconnect(context.Context) error {
	if u.closed() {
		return ErrClosed
	}
	u.setState(StateDisconnected)
	return nil
}

func (u *Unimplemented) SendEvent(_ context.Context, ev types.ElementEvent) (types.SendEventResponse, error) {
	if u.closed() {
		return types.SendEventResponse{}, ErrClosed
	}
	u.mu.Lock()
	u.eventsFailed++
	u.mu.Unlock()
	return types.SendEventResponse{ElementID: ev.ElementID, Code: types.SendFailed, Errors: []string{ErrNotImplemented.Error()}}, nil
}

func (u *Unimplemented) SendBatchEvents(ctx context.Context, evs []types.ElementEvent) (types.BatchEventsResponse, error) {
	out := types.BatchEventsResponse{Successful: []types.SendEventResponse{}, Failed: []types.SendEventResponse{}}
	for _, ev := range evs {
		res, err := u.SendEvent(ctx, ev)
		if err != nil {
			return out, err
		}
		out.Failed = append(out.Failed, res)
	}
	return out, nil
}

func (u *Unimplemented) SubscribeToElement(string, events.Subscriber) (func(), error) {
	return nil, ErrNotImplemented
}

func (u *Unimplemented) SubscribeToAll(events.Subscriber) (func(), error) {
	return nil, ErrNotImplemented
}

func (u *Unimplemented) OnConnectionStateChange(fn func(ConnectionState)) func() {
	u.mu.Lock()
	defer u.mu.Unlock()
	id := uuid.NewString()
	u.stateSubs[id] = fn
	return func() {
		u.mu.Lock()
		delete(u.stateSubs, id)
		u.mu.Unlock()
	}
}

func (u *Unimplemented) OnError(fn func(error)) func() {
	u.mu.Lock()
	defer u.mu.Unlock()
	id := uuid.NewString()
	u.errSubs[id] = fn
	return func() {
		u.mu.Lock()
		delete(u.errSubs, id)
		u.mu.Unlock()
	}
}

func (u *Unimplemented) Stats() Stats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return Stats{State: u.state, EventsFailed: u.eventsFailed}
}

// Destroy closes the transport and drops all listeners.
func (u *Unimplemented) Destroy() {
	u.setState(StateClosed)
	u.mu.Lock()
	u.stateSubs = make(map[string]func(ConnectionState))
	u.errSubs = make(map[string]func(error))
	u.mu.Unlock()
}

func (u *Unimplemented) closed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state == StateClosed
}

func (u *Unimplemented) setState(s ConnectionState) {
	u.mu.Lock()
	if u.state == s || u.state == StateClosed {
		u.mu.Unlock()
		return
	}
	u.state = s
	fns := make([]func(ConnectionState), 0, len(u.stateSubs))
	for _, fn := range u.stateSubs {
		fns = append(fns, fn)
	}
	u.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (u *Unimplemented) raise(err error) {
	u.mu.Lock()
	fns := make([]func(error), 0, len(u.errSubs))
	for _, fn := range u.errSubs {
		fns = append(fns, fn)
	}
	u.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}
