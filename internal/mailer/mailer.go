// Package mailer delivers transactional mail for the auth flows. The only
// message the service sends today is the post-registration confirmation link.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"clientdesk.org/internal/obs"
)

// Mailer sends a confirmation message carrying a one-time token.
type Mailer interface {
	SendConfirmation(ctx context.Context, to, token string) error
}

// SMTP sends confirmation mail through a plain SMTP relay.
type SMTP struct {
	addr       string
	from       string
	auth       smtp.Auth
	confirmURL string
}

// NewSMTP constructs an SMTP mailer. confirmURL is the public base of the
// confirmation endpoint; the token is appended as a query parameter.
func NewSMTP(addr, from, username, password, confirmURL string) (*SMTP, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("mailer: smtp address is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("mailer: from address is required")
	}
	m := &SMTP{
		addr:       addr,
		from:       from,
		confirmURL: strings.TrimRight(confirmURL, "/"),
	}
	if username != "" {
		host := addr
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			host = addr[:i]
		}
		m.auth = smtp.PlainAuth("", username, password, host)
	}
	return m, nil
}

func (m *SMTP) SendConfirmation(ctx context.Context, to, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	link := fmt.Sprintf("%s?token=%s", m.confirmURL, token)
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: Confirm your account",
		"",
		"Welcome! Confirm your email address by following the link below.",
		"",
		link,
		"",
	}, "\r\n")
	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send confirmation mail: %w", err)
	}
	return nil
}

// Log is a no-delivery mailer that writes the confirmation link to the
// service log. Used when no SMTP relay is configured.
type Log struct{}

func (Log) SendConfirmation(_ context.Context, to, token string) error {
	obs.LogRequest(map[string]any{
		"level": "info",
		"msg":   "confirmation_mail_skipped",
		"to":    to,
		"token": token,
	})
	return nil
}
