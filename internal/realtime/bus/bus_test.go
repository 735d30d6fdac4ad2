package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MartinPaviot/Nareo-sub004/internal/realtime"
)

func TestMemoryBusForwards(t *testing.T) {
	b := NewMemoryBus()
	var got []realtime.SSEMessage
	require.NoError(t, b.StartForwarder(context.Background(), func(m realtime.SSEMessage) { got = append(got, m) }))
	require.Error(t, b.StartForwarder(context.Background(), nil))

	msg := realtime.SSEMessage{Channel: "course:1", Event: realtime.SSEEventQuizProgress}
	require.NoError(t, b.Publish(context.Background(), msg))
	require.Equal(t, []realtime.SSEMessage{msg}, got)

	require.NoError(t, b.Close())
	require.Error(t, b.Publish(context.Background(), msg))
}

func TestNewRedisBusValidatesConfig(t *testing.T) {
	_, err := NewRedisBus(nil, RedisConfig{Addr: "localhost:6379"})
	require.Error(t, err)
}
