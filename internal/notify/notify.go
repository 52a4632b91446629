// Package notify sends round lifecycle events to an out-of-band sink.
// Delivery is best effort; a notifier must never fail a round.
package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Event is one round lifecycle notification.
type Event struct {
	Kind    string // "round_started", "round_finished", "round_failed"
	TaskID  string
	RoundID string
	Round   int
	Detail  string
	Elapsed time.Duration
}

// Notifier receives round lifecycle events.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Nop discards all events. The default when no sink is configured.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// Telegram posts events to a chat. Messages are plain text; send
// failures are logged and swallowed.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

var _ Notifier = (*Telegram)(nil)

func NewTelegram(token string, chatID int64, logger *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init failed: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("telegram notifier started", zap.String("bot", bot.Self.UserName))
	return &Telegram{bot: bot, chatID: chatID, logger: logger}, nil
}

func (t *Telegram) Notify(ctx context.Context, ev Event) {
	if err := ctx.Err(); err != nil {
		return
	}

	msg := tgbotapi.NewMessage(t.chatID, formatEvent(ev))
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Warn("telegram notify failed",
			zap.String("kind", ev.Kind),
			zap.String("task_id", ev.TaskID),
			zap.Error(err))
	}
}

func formatEvent(ev Event) string {
	header := map[string]string{
		"round_started":  "Round started",
		"round_finished": "Round finished",
		"round_failed":   "Round failed",
	}[ev.Kind]
	if header == "" {
		header = ev.Kind
	}

	text := fmt.Sprintf("%s: %s (round %d)", header, ev.TaskID, ev.Round)
	if ev.Elapsed > 0 {
		text += fmt.Sprintf("\nelapsed: %s", ev.Elapsed.Round(time.Second))
	}
	if ev.Detail != "" {
		text += "\n" + ev.Detail
	}
	return text
}
