package pantry

import (
	"github.com/golang-sql/civil"

	"pantrybot/internal/storage"
)

// Slots reports which clock minutes the sweep runs at.
// scheduler.MinuteGrid implements it.
type Slots interface {
	Fires(hour, minute int) bool
	NextSlot(hour, minute int) (h, m int, ok bool)
}

type Config struct {
	DefaultLeadDays int
	DefaultNotifyAt civil.Time
	MaxLeadDays     int
	WarningDays     int
	MaxNameLength   int
	MaxItems        int
	// NotifySlots limits the notify times users may pick. Nil allows any
	// minute.
	NotifySlots     Slots
}

func (c Config) withDefaults() Config {
	if c.MaxLeadDays <= 0 {
		c.MaxLeadDays = 30
	}
	if c.DefaultLeadDays < 0 {
		c.DefaultLeadDays = 0
	}
	if c.DefaultLeadDays > c.MaxLeadDays {
		c.DefaultLeadDays = c.MaxLeadDays
	}
	if c.WarningDays <= 0 {
		c.WarningDays = 3
	}
	if c.MaxNameLength <= 0 {
		c.MaxNameLength = 100
	}
	return c
}

type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusExpired Status = "expired"
	StatusUndated Status = "undated"
)

// ItemView is an item as of a given day.
type ItemView struct {
	storage.Item
	DaysLeft int // meaningless when Status is StatusUndated
	Status   Status
}

// Listing is a user's items plus the counts shown above the list.
type Listing struct {
	Today   civil.Date
	Items   []ItemView
	Total   int
	Warning int
	Expired int
}

// SaveResult reports a created or edited item and whether the save handed a
// notice to the notifier.
type SaveResult struct {
	Item     storage.Item
	Notified bool
}

// Edit is a partial item change; nil fields are kept.
type Edit struct {
	Name       *string
	Expiration *civil.Date
}

// Settings is a partial settings change; nil fields are kept.
type Settings struct {
	LeadDays *int
	NotifyAt *civil.Time
}
