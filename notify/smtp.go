package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// SMTPConfig holds the delivery endpoint for the SMTP notifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTP delivers notifications as plain-text email over SMTP with AUTH PLAIN.
// No TLS negotiation beyond what the server upgrades to via STARTTLS inside
// net/smtp.SendMail.
type SMTP struct {
	cfg SMTPConfig
}

// NewSMTP returns an SMTP notifier for the given endpoint.
func NewSMTP(cfg SMTPConfig) *SMTP {
	return &SMTP{cfg: cfg}
}

// Send implements Notifier. The context deadline is honored only between
// messages; net/smtp has no per-dial context, which is acceptable because
// the Dispatcher already bounds the whole call.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "context done before SMTP delivery")
	}

	subject := msg.Subject
	if subject == "" {
		subject = string(msg.Kind)
	}

	body := s.renderBody(msg)
	wire := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		s.cfg.From, msg.Recipient, subject, body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{msg.Recipient}, []byte(wire)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "SMTP delivery failed").
			WithMetadata(map[string]any{
				"recipient": msg.Recipient,
				"kind":      string(msg.Kind),
			})
	}
	return nil
}

func (s *SMTP) renderBody(msg Message) string {
	keys := make([]string, 0, len(msg.Payload))
	for k := range msg.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, msg.Payload[k])
	}
	return b.String()
}
