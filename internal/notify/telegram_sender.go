package notify

import (
	"context"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// MessageSender is the part of the Telegram bot used to deliver alerts.
type MessageSender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
}

// TelegramSender sends HTML messages through the Telegram Bot API.
// Consecutive failures open a circuit breaker so a dead API does not stall scans.
type TelegramSender struct {
	bot     MessageSender
	breaker *gobreaker.CircuitBreaker
}

// NewTelegramSender wraps a bot in a circuit breaker.
func NewTelegramSender(bot MessageSender, logger *zap.Logger) *TelegramSender {
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        "TelegramAPI",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("telegram circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &TelegramSender{
		bot:     bot,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Send delivers text to chatID with HTML parse mode and link previews disabled.
func (s *TelegramSender) Send(ctx context.Context, chatID int64, text string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return s.bot.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID:    chatID,
			Text:      text,
			ParseMode: models.ParseModeHTML,
			LinkPreviewOptions: &models.LinkPreviewOptions{
				IsDisabled: tgbot.True(),
			},
		})
	})
	return err
}

// State reports the circuit breaker state.
func (s *TelegramSender) State() gobreaker.State {
	return s.breaker.State()
}
