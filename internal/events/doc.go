// Package events carries incremental changes to registered elements.
//
// A Queue buffers ElementEvents in four priority lanes (immediate, high,
// normal, low). Pending events with the same elementId:eventType collapse into
// the slot of the first arrival. A Manager owns the element registry and
// validates, enqueues and applies events. It also keeps a bounded history and
// notifies subscribers.
//
// Scheduling is single-sourced: the queue arms one timer after an enqueue and
// the Manager drains it when the timer fires. With ManagerConfig.ManualFlush
// no timer runs and callers drain explicitly via Manager.Tick. Only one flush
// runs at a time; a concurrent Flush returns an empty result immediately.
//
// SendEvent acknowledges acceptance only. Effects are applied when the queue
// is drained.
package events
