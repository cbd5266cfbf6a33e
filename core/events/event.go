package events

import "namechain/core/types"

// Event represents a structured state change emitted by the chain.
type Event interface {
	EventType() string
	// Event converts the strongly typed event to the generic representation
	// stored in receipts and delivered to subscribers.
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects emitted events in order. The zero value is ready to use.
type Buffer struct {
	events []types.Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	if payload := evt.Event(); payload != nil {
		b.events = append(b.events, payload.Clone())
	}
}

// Drain returns the buffered events and empties the buffer.
func (b *Buffer) Drain() []types.Event {
	if b == nil {
		return nil
	}
	out := b.events
	b.events = nil
	return out
}

// Len reports how many events are buffered.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.events)
}
