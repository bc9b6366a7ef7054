package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SMSConfig holds settings for the HTTP SMS gateway.
type SMSConfig struct {
	// URL is the gateway's send endpoint. Empty disables SMS delivery.
	URL    string `env:"SMS_GATEWAY_URL"`
	APIKey string `env:"SMS_API_KEY"`
	Sender string `env:"SMS_SENDER"`
}

// SMSGateway posts messages to a JSON HTTP gateway. Most hosted SMS
// providers (and the self-hosted relays we run in dev) accept this shape.
type SMSGateway struct {
	cfg    SMSConfig
	client *http.Client
}

func NewSMSGateway(cfg SMSConfig) *SMSGateway {
	return &SMSGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type smsPayload struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

func (g *SMSGateway) SendSMS(ctx context.Context, to, body string) error {
	if g.cfg.URL == "" {
		return fmt.Errorf("sms: gateway not configured")
	}

	payload, err := json.Marshal(smsPayload{To: to, From: g.cfg.Sender, Message: body})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms: send to %s: %w", to, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms: gateway returned %d", resp.StatusCode)
	}
	return nil
}
