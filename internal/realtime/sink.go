package realtime

import (
	"context"
	"sync"
)

// Sink receives the events of one generation stream.
type Sink interface {
	Emit(ev Event) error
}

type SinkFunc func(ev Event) error

func (f SinkFunc) Emit(ev Event) error { return f(ev) }

// Discard accepts and drops every event.
var Discard Sink = SinkFunc(func(Event) error { return nil })

// Guard enforces the stream contract on top of any sink: progress never
// decreases, and nothing follows the first complete or error event.
// It is safe for concurrent use.
type Guard struct {
	mu     sync.Mutex
	next   Sink
	last   int
	closed bool
}

func NewGuard(next Sink) *Guard {
	if g, ok := next.(*Guard); ok {
		return g
	}
	if next == nil {
		next = Discard
	}
	return &Guard{next: next}
}

func (g *Guard) Emit(ev Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrStreamClosed
	}
	if ev.Kind == EventProgress {
		if p, ok := ev.Data.(ProgressData); ok {
			if p.Progress < g.last {
				p.Progress = g.last
			}
			g.last = p.Progress
			ev.Data = p
		}
	}
	if ev.Terminal() {
		g.closed = true
	}
	return g.next.Emit(ev)
}

func (g *Guard) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// LastProgress is the highest progress value emitted so far.
func (g *Guard) LastProgress() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Tee forwards every event to all sinks and returns the first error.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(ev Event) error {
		var first error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Emit(ev); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}

// Emitter delivers hub messages, either to the local hub or across
// processes through a bus.
type Emitter interface {
	Emit(ctx context.Context, msg SSEMessage)
}

// ChannelSink mirrors stream events onto a hub channel.
func ChannelSink(ctx context.Context, em Emitter, channel string) Sink {
	return SinkFunc(func(ev Event) error {
		if em == nil || channel == "" {
			return nil
		}
		em.Emit(ctx, SSEMessage{Channel: channel, Event: ev.SSEEvent(), Data: ev.Data})
		return nil
	})
}
