package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SMSGateway posts messages to an HTTP SMS provider as JSON.
type SMSGateway struct {
	URL    string
	Token  string
	From   string
	Client *http.Client
}

func NewSMSGateway(url, token, from string) *SMSGateway {
	if url == "" {
		return nil
	}
	return &SMSGateway{
		URL:    url,
		Token:  token,
		From:   from,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

type smsPayload struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Body string `json:"body"`
}

func (g *SMSGateway) SendSMS(ctx context.Context, m SMS) error {
	if g == nil || g.URL == "" {
		return ErrTransportNotConfigured
	}
	body, err := json.Marshal(smsPayload{From: g.From, To: m.To, Body: m.Body})
	if err != nil {
		return fmt.Errorf("encode sms: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("sms gateway returned HTTP %d", resp.StatusCode)
	}
	return nil
}
