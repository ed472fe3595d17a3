package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	// KindTransferReceived indicates funds arrived at a user's address.
	KindTransferReceived = "transfer_received"

	// KindAutoCycle reports auto-transaction cycle progress.
	KindAutoCycle = "auto_cycle"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

// TelegramNotifier delivers messages through the Telegram Bot API. The
// destination is the numeric chat id of the recipient.
type TelegramNotifier struct {
	token  string
	client *http.Client
	logger *slog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier with the given bot token.
func NewTelegramNotifier(token string, logger *slog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Send posts the message to the recipient's chat. Delivery failures are
// returned but callers generally treat them as best effort.
func (n *TelegramNotifier) Send(ctx context.Context, message Message) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": message.Destination,
		"text":    message.Body,
	})
	if err != nil {
		return fmt.Errorf("encode telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if n.logger != nil {
			n.logger.Warn("telegram delivery failed", "status", resp.StatusCode, "destination", message.Destination)
		}
		return fmt.Errorf("telegram responded %d", resp.StatusCode)
	}
	return nil
}
