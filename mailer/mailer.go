// Package mailer provides authcore.Mailer implementations: an SMTP sender
// built on gomail and a no-op for deployments that deliver out of band.
package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTP sends plain-text mail through a single SMTP account.
type SMTP struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTP(host string, port int, user, pass, from string) *SMTP {
	return &SMTP{
		dialer: gomail.NewDialer(host, port, user, pass),
		from:   from,
	}
}

func (s *SMTP) Send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send %q mail: %w", subject, err)
	}
	return nil
}

// Noop drops every message. Useful in tests and in setups where tokens reach
// users through another channel.
type Noop struct{}

func (Noop) Send(string, string, string) error { return nil }
