package channel

import (
	"context"
	"fmt"

	"gopkg.in/mail.v2"
)

// EmailSink delivers report notifications over SMTP.
type EmailSink struct {
	dialer *mail.Dialer
	from   string
}

func NewEmailSink(host string, port int, username, password, from string) *EmailSink {
	return &EmailSink{
		dialer: mail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (s *EmailSink) Name() string { return NameEmail }

func (s *EmailSink) Send(ctx context.Context, d Delivery) error {
	if d.Email == "" {
		return fmt.Errorf("recipient %s has no email address", d.RecipientID)
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", d.Email)
	msg.SetHeader("Subject", d.Subject)
	msg.SetBody("text/plain", d.Body)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email to %s: %w", d.Email, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
