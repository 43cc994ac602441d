package expiry

import (
	"context"

	"github.com/golang-sql/civil"

	"pantrybot/internal/storage"
)

// ShouldSend reports whether item's flag still allows a notice.
func ShouldSend(it storage.Item) bool {
	return !it.NotificationSent
}

// Store is the slice of storage the notification core needs.
type Store interface {
	FindUsersWithNotifyTime(ctx context.Context, t civil.Time) ([]storage.User, error)
	FindItemsDueOn(ctx context.Context, userID int64, date civil.Date) ([]storage.Item, error)
	ClaimNotification(ctx context.Context, itemID int64, exp civil.Date, claim string) (bool, error)
	ReleaseNotification(ctx context.Context, itemID int64, claim string) error
	RecordDelivery(ctx context.Context, d storage.Delivery) error
}
