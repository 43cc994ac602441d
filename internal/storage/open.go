package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-sql/civil"

	"pantrybot/pkg/logx"
)

// Store is the persistence API used by the pantry service and the
// notification core.
type Store interface {
	EnsureUser(ctx context.Context, chatID int64, displayName string, def UserDefaults) (u User, created bool, err error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByChat(ctx context.Context, chatID int64) (User, error)
	UpdateUserSettings(ctx context.Context, id int64, s UserSettings) (User, error)
	DeleteUser(ctx context.Context, id int64) error
	FindUsersWithNotifyTime(ctx context.Context, t civil.Time) ([]User, error)

	CreateItem(ctx context.Context, it Item) (Item, error)
	GetItem(ctx context.Context, userID, itemID int64) (Item, error)
	UpdateItem(ctx context.Context, userID int64, u ItemUpdate) (Item, error)
	DeleteItem(ctx context.Context, userID, itemID int64) error
	ListItems(ctx context.Context, userID int64) ([]Item, error)
	FindItemsDueOn(ctx context.Context, userID int64, date civil.Date) ([]Item, error)

	// ClaimNotification sets the sent flag if it is clear and the item still
	// expires on exp, and records claim as the holder. It reports whether
	// this caller won the flag.
	ClaimNotification(ctx context.Context, itemID int64, exp civil.Date, claim string) (bool, error)
	// ReleaseNotification clears the flag only while claim still holds it.
	// An expiration change or a newer claim makes it a no-op.
	ReleaseNotification(ctx context.Context, itemID int64, claim string) error

	RecordDelivery(ctx context.Context, d Delivery) error
	ListDeliveries(ctx context.Context, userID int64, limit int) ([]Delivery, error)

	Close() error
}

// Open initializes the configured store.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "none":
		return nil, ErrDisabled
	case "", "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	case "postgres", "postgresql", "pgx":
		return openPostgres(ctx, cfg, log)
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
