package notify

import (
	"context"
	"fmt"
	"time"

	"inspection-platform/pkg/logger"

	"github.com/google/uuid"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridDispatcher sends mail through the SendGrid v3 API.
type SendGridDispatcher struct {
	client *sendgrid.Client
	from   *mail.Email
	clock  func() time.Time
}

func NewSendGridDispatcher(apiKey, fromName, fromEmail string) *SendGridDispatcher {
	return &SendGridDispatcher{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(fromName, fromEmail),
		clock:  time.Now,
	}
}

func (d *SendGridDispatcher) Send(ctx context.Context, m Message) (Receipt, error) {
	if err := validate(m); err != nil {
		return Receipt{}, err
	}
	to := mail.NewEmail(m.To.Name, m.To.Email)
	message := mail.NewSingleEmail(d.from, m.Subject, to, m.Text, m.HTML)
	if m.CaseID != "" {
		message.SetCustomArg("case_id", m.CaseID)
	}
	if m.Kind != "" {
		message.AddCategories(m.Kind)
	}

	log := logger.From(ctx)
	response, err := d.client.SendWithContext(ctx, message)
	if err != nil {
		log.Error("failed to send email", "err", err, "case_id", m.CaseID, "kind", m.Kind)
		return Receipt{}, err
	}
	// Only a 2xx means SendGrid queued the message.
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		log.Error("sendgrid did not accept message", "status", response.StatusCode, "body", response.Body, "case_id", m.CaseID)
		return Receipt{}, fmt.Errorf("%w: status %d", ErrRejected, response.StatusCode)
	}

	id := ""
	if vals := response.Headers["X-Message-Id"]; len(vals) > 0 {
		id = vals[0]
	}
	if id == "" {
		id = uuid.NewString()
	}
	log.Info("email sent", "case_id", m.CaseID, "kind", m.Kind, "dispatch_id", id)
	return Receipt{DispatchID: id, SentAt: d.clock().UTC()}, nil
}
