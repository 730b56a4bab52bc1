package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"solana-whale-tracker/internal/domain"
	"solana-whale-tracker/internal/observability"
	"solana-whale-tracker/internal/storage"
)

// ErrNoRecipient is returned by Recipient when no chat has registered for alerts.
var ErrNoRecipient = errors.New("no alert recipient registered")

// Alert outcome labels.
const (
	AlertSent        = "sent"
	AlertFailed      = "failed"
	AlertNoRecipient = "no_recipient"
)

// Sender delivers a rendered message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Dispatcher formats transfer events and sends them to the registered recipient.
// Delivery is attempted once per event.
type Dispatcher struct {
	settings  storage.SettingsStore
	sender    Sender
	formatter *Formatter
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher. A nil formatter uses the defaults.
func NewDispatcher(settings storage.SettingsStore, sender Sender, formatter *Formatter, logger *zap.Logger) *Dispatcher {
	if formatter == nil {
		formatter = NewFormatter("", "")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		settings:  settings,
		sender:    sender,
		formatter: formatter,
		logger:    logger,
	}
}

// Dispatch sends one alert. Events are dropped silently while no recipient is registered.
// Any failure to reach the recipient is returned wrapping domain.ErrDeliveryFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.TransferEvent, wallet *domain.WalletInfo) error {
	chatID, err := d.Recipient(ctx)
	if errors.Is(err, ErrNoRecipient) {
		observability.RecordAlert(AlertNoRecipient)
		d.logger.Debug("alert dropped, no recipient",
			zap.String("signature", ev.Signature),
			zap.String("wallet", ev.WalletAddress))
		return nil
	}
	if err != nil {
		observability.RecordAlert(AlertFailed)
		return fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
	}

	text := d.formatter.Format(ev, wallet)
	if err := d.sender.Send(ctx, chatID, text); err != nil {
		observability.RecordAlert(AlertFailed)
		return fmt.Errorf("%w: send to %d: %w", domain.ErrDeliveryFailed, chatID, err)
	}

	observability.RecordAlert(AlertSent)
	d.logger.Info("alert sent",
		zap.String("signature", ev.Signature),
		zap.String("wallet", ev.WalletAddress),
		zap.String("direction", ev.Direction.String()),
		zap.String("amount", ev.Amount.String()))
	return nil
}

// Recipient returns the registered chat id, or ErrNoRecipient.
func (d *Dispatcher) Recipient(ctx context.Context) (int64, error) {
	chatID, err := d.settings.GetRecipient(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrNoRecipient
	}
	if err != nil {
		return 0, fmt.Errorf("read recipient: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return chatID, nil
}
