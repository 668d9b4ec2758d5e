// Package mailer delivers notification emails about batch intake outcomes.
package mailer

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/batch-intake-api/pkg/config"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      []mail.Address
	Subject string
	Text    string
	HTML    string
}

// HasRecipients reports whether the message has at least one address.
func (m Message) HasRecipients() bool {
	return len(m.To) > 0
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ParseRecipients turns a list of RFC 5322 addresses into mail.Address values.
func ParseRecipients(raw []string) ([]mail.Address, error) {
	out := make([]mail.Address, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		addr, err := mail.ParseAddress(r)
		if err != nil {
			return nil, fmt.Errorf("parse recipient %q: %w", r, err)
		}
		out = append(out, *addr)
	}
	return out, nil
}

// New picks a sender from configuration.
func New(cfg config.NotificationConfig, logger *zap.Logger) (Sender, error) {
	from := mail.Address{Name: cfg.FromName, Address: cfg.FromAddress}
	switch cfg.Provider {
	case "", "console":
		return NewConsoleSender(from, logger), nil
	case "sendgrid":
		if cfg.SendgridAPIKey == "" {
			return nil, fmt.Errorf("sendgrid provider requires SENDGRID_API_KEY")
		}
		return NewSendgridSender(cfg.SendgridAPIKey, from), nil
	default:
		return nil, fmt.Errorf("unknown notification provider %q", cfg.Provider)
	}
}
