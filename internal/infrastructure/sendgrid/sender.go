package sendgrid

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-auth-nosql/internal/infrastructure/mail"
	sg "github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendTimeout = 30 * time.Second

// Sender delivers mail through the SendGrid v3 API.
type Sender struct {
	client *sg.Client
	from   *sgmail.Email
}

func NewSender(apiKey, from string) (*Sender, error) {
	if apiKey == "" || from == "" {
		return nil, errors.New("invalid SendGrid configuration")
	}
	return &Sender{client: sg.NewSendClient(apiKey), from: sgmail.NewEmail("", from)}, nil
}

func (s *Sender) Send(ctx context.Context, msg mail.Message) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	m := sgmail.NewSingleEmail(s.from, msg.Subject, sgmail.NewEmail("", msg.To), msg.Text, msg.HTML)
	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("sendgrid: unexpected status %d", resp.StatusCode)
	}
	return nil
}
