// Package transport defines the contract for pushing element events to and
// from a remote peer. Only a placeholder implementation ships; wire protocols
// plug in behind Transport.
package transport

import (
	"context"
	"errors"

	"elementd/internal/events"
	"elementd/pkg/types"
)

// ConnectionState of a transport.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateError        ConnectionState = "error"
	StateClosed       ConnectionState = "closed"
)

// ErrNotImplemented is returned by the placeholder for every network operation.
var ErrNotImplemented = errors.New("transport: no protocol implementation")

// ErrClosed is returned after Destroy.
var ErrClosed = errors.New("transport: closed")

// Stats are cumulative transport counters.
type Stats struct {
	State        ConnectionState `json:"state"`
	EventsSent   uint64          `json:"events_sent"`
	EventsFailed uint64          `json:"events_failed"`
	Reconnects   uint64          `json:"reconnects"`
}

// Transport carries element events over some wire protocol.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SendEvent(ctx context.Context, ev types.ElementEvent) (types.SendEventResponse, error)
	SendBatchEvents(ctx context.Context, evs []types.ElementEvent) (types.BatchEventsResponse, error)
	SubscribeToElement(elementID string, fn events.Subscriber) (func(), error)
	SubscribeToAll(fn events.Subscriber) (func(), error)
	OnConnectionStateChange(fn func(ConnectionState)) func()
	OnError(fn func(error)) func()
	Stats() Stats
	Destroy()
}
