package app

import (
	"context"

	"pantrybot/internal/eventbus"
	logx "pantrybot/pkg/logx"
)

// logEvents mirrors bus events into the log until ctx ends.
func logEvents(ctx context.Context, log logx.Logger, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch e.Type {
			case eventbus.TypeNotifyDropped, eventbus.TypeTaskFailed:
				log.Warn("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			default:
				// frequent; keep at debug
				log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	}
}
