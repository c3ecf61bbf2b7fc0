package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SMSSink delivers report notifications through an HTTP SMS gateway.
type SMSSink struct {
	apiURL string
	apiKey string
	sender string
	client *http.Client
}

func NewSMSSink(apiURL, apiKey, sender string) *SMSSink {
	return &SMSSink{
		apiURL: apiURL,
		apiKey: apiKey,
		sender: sender,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SMSSink) Name() string { return NameSMS }

type smsRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
}

func (s *SMSSink) Send(ctx context.Context, d Delivery) error {
	if d.Phone == "" {
		return fmt.Errorf("recipient %s has no phone number", d.RecipientID)
	}

	body, err := json.Marshal(smsRequest{
		To:      d.Phone,
		From:    s.sender,
		Message: d.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms to %s: %w", d.Phone, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway error: %s", resp.Status)
	}

	return nil
}
