package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram pushes notifications through the Bot API. The owner id doubles as
// the chat id.
type Telegram struct {
	token   string
	apiBase string
	http    *http.Client
	log     *zap.Logger
}

func NewTelegram(token string, log *zap.Logger) *Telegram {
	return &Telegram{
		token:   token,
		apiBase: defaultAPIBase,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// NewTelegramWithBase is used by tests to point the client at a fake API.
func NewTelegramWithBase(token, apiBase string, log *zap.Logger) *Telegram {
	t := NewTelegram(token, log)
	t.apiBase = apiBase
	return t
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func (t *Telegram) Notify(ctx context.Context, ownerID int64, event PriceChange) error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: ownerID, Text: event.Message()})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send message: unexpected status %d", resp.StatusCode)
	}

	t.log.Debug("notification delivered",
		zap.String("event_id", event.EventID),
		zap.Int64("owner_id", ownerID),
	)
	return nil
}
