package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	t.Cleanup(log.Sync)
	return log
}

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubReconnectAndOrdering(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := CourseChannel(uuid.New())

	clientA := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientA, channel)
	require.Equal(t, 1, hub.Subscribers(channel))

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventQuizProgress, Data: map[string]any{"seq": 1}})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventQuizQuestion, Data: map[string]any{"seq": 2}})

	require.Equal(t, SSEEventQuizProgress, recvMessage(t, clientA.Outbound, time.Second).Event)
	require.Equal(t, SSEEventQuizQuestion, recvMessage(t, clientA.Outbound, time.Second).Event)

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	_, ok := <-clientA.Outbound
	require.False(t, ok)
	require.Zero(t, hub.Subscribers(channel))

	clientB := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventQuizComplete})
	require.Equal(t, SSEEventQuizComplete, recvMessage(t, clientB.Outbound, time.Second).Event)
}

func TestSSEHubIgnoresOtherChannels(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, UserChannel(client.UserID))
	hub.AddChannel(client, "  ")

	hub.Broadcast(SSEMessage{Channel: "course:other", Event: SSEEventJobDone})
	hub.Broadcast(SSEMessage{Channel: UserChannel(client.UserID), Event: SSEEventJobCreated})
	require.Equal(t, SSEEventJobCreated, recvMessage(t, client.Outbound, time.Second).Event)

	hub.RemoveChannel(client, UserChannel(client.UserID))
	hub.Broadcast(SSEMessage{Channel: UserChannel(client.UserID), Event: SSEEventJobDone})
	select {
	case msg := <-client.Outbound:
		t.Fatalf("unexpected message after unsubscribe: %v", msg.Event)
	default:
	}
}

func TestSSEHubServeHTTPWritesMessages(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	client := hub.NewSSEClient(uuid.New())
	channel := UserChannel(client.UserID)
	hub.AddChannel(client, channel)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/sse/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		hub.ServeHTTP(rec, req, client)
		close(done)
	}()

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventJobDone, Data: map[string]any{"job_id": "j1"}})
	require.Eventually(t, func() bool { return len(client.Outbound) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	frames, err := DecodeAll(strings.NewReader(rec.Body.String()))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, "message", frames[0].Event)
	require.Contains(t, frames[0].Data, `"event":"JobDone"`)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestSSEHubWatchedCourses(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	client := hub.NewSSEClient(uuid.New())
	require.False(t, client.OpenedAt.IsZero())

	a, b := uuid.New(), uuid.New()
	if a.String() > b.String() {
		a, b = b, a
	}
	hub.AddChannel(client, UserChannel(client.UserID))
	hub.AddChannel(client, CourseChannel(b))
	hub.AddChannel(client, CourseChannel(a))
	hub.AddChannel(client, "course:not-a-uuid")
	require.Equal(t, []uuid.UUID{a, b}, hub.WatchedCourses(client))

	hub.RemoveChannel(client, CourseChannel(a))
	require.Equal(t, []uuid.UUID{b}, hub.WatchedCourses(client))

	hub.CloseClient(client)
	require.Empty(t, hub.WatchedCourses(client))
}

func TestCourseFromChannel(t *testing.T) {
	id := uuid.New()
	got, ok := CourseFromChannel(CourseChannel(id))
	require.True(t, ok)
	require.Equal(t, id, got)

	for _, ch := range []string{UserChannel(id), "course:", "course:xyz"} {
		_, ok := CourseFromChannel(ch)
		require.False(t, ok, ch)
	}
}
