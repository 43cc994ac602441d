package notifier

import (
	"context"
	"time"
)

// Config controls the delivery pipeline.
type Config struct {
	Enabled       bool
	Channel       string
	SenderName    string
	Workers       int
	QueueSize     int
	RatePerSec    float64
	Burst         int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
	HistorySize   int
}

// Message is a rendered notice ready for a Sender.
type Message struct {
	ChatID int64
	Title  string
	Text   string
}

// Sender is one outbound transport.
type Sender interface {
	Name() string
	Send(ctx context.Context, m Message) error
}

// HistoryItem is one finished delivery, newest last.
type HistoryItem struct {
	At       time.Time
	NoticeID string
	ItemID   int64
	UserID   int64
	Path     string
	Attempts int
	OK       bool
	Error    string
}

// Stats are cumulative counters since start.
type Stats struct {
	Queued   int
	Sent     uint64
	Failed   uint64
	Rejected uint64
	Sender   string
}
