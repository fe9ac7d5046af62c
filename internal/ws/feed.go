package ws

import (
	"context"
	"log/slog"
)

// SnapshotFunc renders the current state of a topic.
type SnapshotFunc func(ctx context.Context) ([]byte, error)

// Feed broadcasts a fresh snapshot on topic every time changes fires, until
// ctx is done or changes is closed.
func Feed(ctx context.Context, hub *Hub, topic string, changes <-chan struct{}, snapshot SnapshotFunc, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			if hub.Subscribers(topic) == 0 {
				continue
			}
			payload, err := snapshot(ctx)
			if err != nil {
				logger.Warn("snapshot failed", "topic", topic, "error", err)
				continue
			}
			hub.Broadcast(topic, payload)
		}
	}
}
