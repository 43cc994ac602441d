package expiry

import (
	"context"
	"time"

	"github.com/golang-sql/civil"

	"pantrybot/internal/storage"
)

// Path names the trigger that produced a notice.
type Path string

const (
	PathImmediate Path = "immediate"
	PathSweep     Path = "sweep"
)

// Notice is one notification decision handed to the Gateway.
type Notice struct {
	ID          string
	Path        Path
	Item        storage.Item
	User        storage.User
	DecisionDay civil.Date
	DaysLeft    int
	CreatedAt   time.Time
}

// Gateway delivers notices asynchronously.
//
// A nil error means the notice was accepted and done will be called exactly
// once with the delivery outcome. A non-nil error means the notice was
// rejected and done will not be called.
type Gateway interface {
	Notify(ctx context.Context, n Notice, done func(error)) error
}

// GatewayFunc adapts a synchronous function to Gateway. The function runs
// on its own goroutine.
type GatewayFunc func(ctx context.Context, n Notice) error

func (f GatewayFunc) Notify(ctx context.Context, n Notice, done func(error)) error {
	ctx = context.WithoutCancel(ctx)
	go func() {
		err := f(ctx, n)
		if done != nil {
			done(err)
		}
	}()
	return nil
}
