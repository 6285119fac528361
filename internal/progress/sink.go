package progress

import "context"

// Sink consumes batches of events. Consume may be called many times and must honor
// ctx; Close is called once when the hub shuts down.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter accepts single events; *Hub satisfies it.
type Emitter interface {
	Emit(evt Event)
}
