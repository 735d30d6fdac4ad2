package realtime

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
)

// SSEClient is one open hub connection. Channels is guarded by the hub lock.
type SSEClient struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	OpenedAt time.Time
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	Logger   *logger.Logger
}

// courses lists the course channels the client follows, in id order.
func (c *SSEClient) courses() []uuid.UUID {
	var out []uuid.UUID
	for ch := range c.Channels {
		if id, ok := CourseFromChannel(ch); ok {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
	return out
}
