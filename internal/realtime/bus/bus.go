package bus

import (
	"context"

	"github.com/MartinPaviot/Nareo-sub004/internal/realtime"
)

// Bus carries hub messages between processes: workers publish, every HTTP
// process forwards what it receives into its local hub.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
