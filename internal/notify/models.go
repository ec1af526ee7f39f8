package notify

import (
	"context"
	"errors"
	"time"
)

// Recipient is the addressee of a legal notice.
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Message is a rendered email ready for dispatch.
type Message struct {
	To      Recipient
	Subject string
	HTML    string
	Text    string

	// CaseID and Kind are carried for logging and provider metadata only.
	CaseID string
	Kind   string
}

// Receipt confirms the provider accepted a message.
type Receipt struct {
	DispatchID string    `json:"dispatch_id"`
	SentAt     time.Time `json:"sent_at"`
}

// Dispatcher delivers messages. A nil error means the provider accepted the
// message; any error means nothing should be considered sent.
type Dispatcher interface {
	Send(ctx context.Context, m Message) (Receipt, error)
}

var (
	ErrInvalidMessage = errors.New("notify: invalid message")
	ErrRejected       = errors.New("notify: provider rejected message")
)

func validate(m Message) error {
	if m.To.Email == "" || m.Subject == "" || (m.HTML == "" && m.Text == "") {
		return ErrInvalidMessage
	}
	return nil
}
