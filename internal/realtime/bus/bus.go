package bus

import (
	"context"

	"github.com/yungbote/membernode/internal/realtime"
)

// Bus fans chain events out to other processes. Publishing happens after commit,
// so subscribers only see durable changes.
type Bus interface {
	Publish(ctx context.Context, ev realtime.ChainEvent) error
	StartForwarder(ctx context.Context, onEvent func(ev realtime.ChainEvent)) error
	Close() error
}
