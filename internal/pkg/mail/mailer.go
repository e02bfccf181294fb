package mail

import (
	"errors"
	"fmt"
	"net/smtp"

	"github.com/curavoy/curavoy/internal/pkg/env"
)

var subjects = map[string]string{
	"payment_released": "Your payment has been released",
	"payment_refunded": "Your payment has been refunded",
	"payout_failed":    "A payout could not be executed",
	"system":           "Curavoy notification",
}

// Mailer sends transactional mail via SMTP.
type Mailer struct {
	host     string
	port     string
	username string
	password string
	sender   string
}

// NewMailerFromEnv builds a mailer from SMTP_* environment variables. It
// returns an error when no host is configured so callers can skip email
// delivery instead of dialing nowhere.
func NewMailerFromEnv() (*Mailer, error) {
	host := env.GetEnv("SMTP_HOST", "")
	if host == "" {
		return nil, errors.New("SMTP_HOST not configured")
	}
	sender := env.GetEnv("SMTP_SENDER", "")
	if sender == "" {
		sender = "no-reply@curavoy.com"
	}
	return &Mailer{
		host:     host,
		port:     env.GetEnv("SMTP_PORT", "587"),
		username: env.GetEnv("SMTP_USERNAME", ""),
		password: env.GetEnv("SMTP_PASSWORD", ""),
		sender:   sender,
	}, nil
}

// SendNotification sends a notification email with a subject derived from
// the notification kind.
func (m *Mailer) SendNotification(to, kind, content string) error {
	subject, ok := subjects[kind]
	if !ok {
		subject = subjects["system"]
	}
	return m.Send(to, subject, content)
}

// Send sends a plain-text email to a single recipient.
func (m *Mailer) Send(to, subject, body string) error {
	var auth smtp.Auth
	if m.username != "" && m.password != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	addr := fmt.Sprintf("%s:%s", m.host, m.port)
	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", m.sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n\r\n" +
			body,
	)

	return smtp.SendMail(addr, auth, m.sender, []string{to}, msg)
}
