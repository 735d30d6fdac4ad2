package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestGuardKeepsProgressMonotonic(t *testing.T) {
	rec := &recorder{}
	g := NewGuard(rec)
	for _, p := range []int{10, 40, 30, 40, 120, 5} {
		require.NoError(t, g.Emit(Progress(p, "step", 0, 0)))
	}
	last := -1
	for _, ev := range rec.snapshot() {
		p := ev.Data.(ProgressData).Progress
		require.GreaterOrEqual(t, p, last)
		last = p
	}
	require.Equal(t, 100, g.LastProgress())
}

func TestGuardSingleTerminal(t *testing.T) {
	rec := &recorder{}
	g := NewGuard(rec)
	require.NoError(t, g.Emit(Complete(3, "ready")))
	require.True(t, g.Closed())
	require.ErrorIs(t, g.Emit(Error("late", "x")), ErrStreamClosed)
	require.ErrorIs(t, g.Emit(Progress(100, "", 0, 0)), ErrStreamClosed)
	require.Len(t, rec.snapshot(), 1)

	require.Same(t, g, NewGuard(g))
}

func TestGuardConcurrentTerminal(t *testing.T) {
	rec := &recorder{}
	g := NewGuard(rec)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = g.Emit(Complete(i, "ready"))
			} else {
				_ = g.Emit(Error("boom", "x"))
			}
		}(i)
	}
	wg.Wait()
	require.Len(t, rec.snapshot(), 1)
}

type captureEmitter struct{ msgs []SSEMessage }

func (c *captureEmitter) Emit(_ context.Context, msg SSEMessage) { c.msgs = append(c.msgs, msg) }

func TestTeeAndChannelSink(t *testing.T) {
	em := &captureEmitter{}
	rec := &recorder{}
	failing := SinkFunc(func(Event) error { return errors.New("gone") })

	s := Tee(failing, rec, ChannelSink(context.Background(), em, "course:1"), nil)
	err := s.Emit(Item("flashcard", map[string]any{"id": 1}, 1))
	require.EqualError(t, err, "gone")
	require.Len(t, rec.snapshot(), 1)
	require.Equal(t, EventFlashcard, rec.snapshot()[0].Kind)
	require.Len(t, em.msgs, 1)
	require.Equal(t, SSEEventQuizFlashcard, em.msgs[0].Event)
	require.Equal(t, "course:1", em.msgs[0].Channel)
}
