package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTP delivers messages through a plain SMTP relay.
type SMTP struct {
	addr string // host:port
	from string
	auth smtp.Auth
}

// NewSMTP creates a mailer sending through the relay at addr. Username may
// be empty for an unauthenticated relay.
func NewSMTP(addr, from, username, password string) *SMTP {
	var auth smtp.Auth
	if username != "" {
		host := addr
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			host = addr[:i]
		}
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTP{addr: addr, from: from, auth: auth}
}

// Send delivers one message. It blocks until the relay accepts the mail or
// the context is done.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	payload := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\n"+
			"Content-Type: text/plain; charset=utf-8\r\n\r\n%s",
		s.from, msg.To, msg.Subject, msg.Body,
	)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.addr, s.auth, s.from, []string{msg.To}, []byte(payload))
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
		}
		return nil
	}
}
