package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "pantrybot/internal/transport"
	"pantrybot/pkg/logx"
)

const (
	ChannelTelegram = "telegram"
	ChannelLog      = "log"
)

// NewSender picks the transport for channel. An empty channel means log.
func NewSender(channel string, adapter kit.Adapter, log logx.Logger) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(channel)) {
	case "", ChannelLog:
		return NewLogSender(log), nil
	case ChannelTelegram:
		if adapter == nil {
			return nil, errors.New("telegram channel needs a telegram adapter")
		}
		return &TelegramSender{adapter: adapter}, nil
	default:
		return nil, fmt.Errorf("unknown notifier channel: %s", channel)
	}
}

// TelegramSender sends notices as chat messages through the bot.
type TelegramSender struct {
	adapter kit.Adapter
}

func (s *TelegramSender) Name() string { return ChannelTelegram }

func (s *TelegramSender) Send(ctx context.Context, m Message) error {
	if m.ChatID == 0 {
		return NoRetry(errors.New("notice has no chat id"))
	}
	_, err := s.adapter.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID}, m.Text, &kit.SendOptions{DisablePreview: true})
	if err == nil {
		return nil
	}
	if errors.Is(err, tele.ErrBlockedByUser) || errors.Is(err, tele.ErrChatNotFound) {
		return NoRetry(err)
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return RetryAfter(err, time.Duration(flood.RetryAfter)*time.Second)
	}
	return err
}

// LogSender writes notices to the structured log instead of sending them.
type LogSender struct {
	log logx.Logger
}

func NewLogSender(log logx.Logger) *LogSender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSender{log: log.With(logx.String("comp", "notifier.log_sender"))}
}

func (s *LogSender) Name() string { return ChannelLog }

func (s *LogSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info("notice (not sent)",
		logx.Int64("chat_id", m.ChatID),
		logx.String("title", m.Title),
		logx.String("text", m.Text),
	)
	return nil
}
