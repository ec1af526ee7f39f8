package notify

import (
	"context"
	"time"

	"inspection-platform/pkg/logger"

	"github.com/google/uuid"
)

// LogDispatcher accepts every valid message and logs it instead of sending.
// Used when no SendGrid key is configured (local/dev).
type LogDispatcher struct {
	clock func() time.Time
}

func NewLogDispatcher() *LogDispatcher { return &LogDispatcher{clock: time.Now} }

func (d *LogDispatcher) Send(ctx context.Context, m Message) (Receipt, error) {
	if err := validate(m); err != nil {
		return Receipt{}, err
	}
	r := Receipt{DispatchID: "log-" + uuid.NewString(), SentAt: d.clock().UTC()}
	logger.From(ctx).Info("email dispatch skipped (log dispatcher)",
		"case_id", m.CaseID,
		"kind", m.Kind,
		"to", m.To.Email,
		"subject", m.Subject,
		"dispatch_id", r.DispatchID,
	)
	return r, nil
}
