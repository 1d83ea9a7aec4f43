package mailgun

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/infrastructure/mail"
	"github.com/mailgun/mailgun-go/v4"
)

const sendTimeout = 30 * time.Second

// Sender delivers mail through the Mailgun API.
type Sender struct {
	mg   *mailgun.MailgunImpl
	from string
}

func NewSender(domain, apiKey, from string) (*Sender, error) {
	if domain == "" || apiKey == "" || from == "" {
		return nil, errors.New("invalid Mailgun configuration")
	}
	return &Sender{mg: mailgun.NewMailgun(domain, apiKey), from: from}, nil
}

func (s *Sender) Send(ctx context.Context, msg mail.Message) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	m := s.mg.NewMessage(s.from, msg.Subject, msg.Text, msg.To)
	m.SetHtml(msg.HTML)

	_, id, err := s.mg.Send(ctx, m)
	if err != nil {
		return err
	}
	slog.Debug("email queued", "provider", "mailgun", "id", id)
	return nil
}
