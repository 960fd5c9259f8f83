package progress

import "context"

// Sink consumes batches of run events. Consume is called from the hub's
// single flush goroutine; Close is called once when the hub shuts down.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events.
type Emitter interface {
	Emit(evt Event)
}

// SinkFunc adapts a function into a Sink with a no-op Close.
type SinkFunc func(ctx context.Context, batch []Event) error

// Consume implements Sink.
func (f SinkFunc) Consume(ctx context.Context, batch []Event) error { return f(ctx, batch) }

// Close implements Sink.
func (SinkFunc) Close(context.Context) error { return nil }
