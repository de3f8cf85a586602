// Package lifecycle tracks one state per element id and gates content
// updates on it.
//
// States move created -> registered -> active, with suspended, updating and
// error as side states. destroyed ends the lifecycle of an id; only
// CreateElement or RegisterElement start a new one. Every transition is
// published to the configured EventPublisher and to lifecycle subscribers.
package lifecycle
