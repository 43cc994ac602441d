package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-sql/civil"
)

var (
	ErrDisabled = errors.New("storage disabled")
	// ErrNotFound covers both missing rows and rows owned by another user.
	ErrNotFound = errors.New("not found")
)

// Config configures storage.
//
// If Driver is "none", Open returns ErrDisabled.
type Config struct {
	Driver      string
	Path        string        // sqlite file
	DSN         string        // postgres connection string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// User is a notification profile. ID is the durable key; ChatID is how
// the Telegram surface finds the profile; DisplayName is cosmetic.
type User struct {
	ID          int64
	ChatID      int64
	DisplayName string
	LeadDays    int
	NotifyAt    civil.Time
	CreatedAt   time.Time
}

// UserDefaults seeds a profile created by EnsureUser.
type UserDefaults struct {
	LeadDays int
	NotifyAt civil.Time
}

// UserSettings is a partial update; nil fields are left unchanged.
type UserSettings struct {
	LeadDays    *int
	NotifyAt    *civil.Time
	DisplayName *string
}

// Item is one tracked food item.
//
// NotificationSent belongs to the current Expiration value: any update that
// changes Expiration clears it.
type Item struct {
	ID               int64
	UserID           int64
	Name             string
	Expiration       *civil.Date
	RegisteredAt     time.Time
	NotificationSent bool
}

// ItemUpdate is a partial item edit; nil fields are left unchanged.
type ItemUpdate struct {
	ID         int64
	Name       *string
	Expiration *civil.Date
}

// Delivery records the outcome of one dispatched notice.
type Delivery struct {
	NoticeID    string
	ItemID      int64
	UserID      int64
	ItemName    string
	Path        string
	DecisionDay civil.Date
	OK          bool
	Error       string
	At          time.Time
}

// FormatClock renders a minute-precision time of day the way it is stored.
func FormatClock(t civil.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (civil.Time, error) {
	tt, err := time.Parse("15:04", s)
	if err != nil {
		return civil.Time{}, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	return civil.Time{Hour: tt.Hour(), Minute: tt.Minute()}, nil
}
