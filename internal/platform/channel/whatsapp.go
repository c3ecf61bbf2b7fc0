package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WhatsAppSink delivers report notifications through a WhatsApp Business API
// gateway.
type WhatsAppSink struct {
	apiURL string
	apiKey string
	client *http.Client
}

func NewWhatsAppSink(apiURL, apiKey string) *WhatsAppSink {
	return &WhatsAppSink{
		apiURL: apiURL,
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *WhatsAppSink) Name() string { return NameWhatsApp }

type whatsAppRequest struct {
	To   string `json:"to"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

func (s *WhatsAppSink) Send(ctx context.Context, d Delivery) error {
	if d.Phone == "" {
		return fmt.Errorf("recipient %s has no phone number", d.RecipientID)
	}

	payload := whatsAppRequest{To: d.Phone, Type: "text"}
	payload.Text.Body = d.Body

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send whatsapp to %s: %w", d.Phone, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp gateway error: %s", resp.Status)
	}

	return nil
}
