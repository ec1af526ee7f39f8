package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFormatMinor(t *testing.T) {
	cases := map[int64]string{
		0:         "PHP 0.00",
		5:         "PHP 0.05",
		1250000:   "PHP 12,500.00",
		100000000: "PHP 1,000,000.00",
		-1999:     "PHP -19.99",
	}
	for in, want := range cases {
		if got := FormatMinor(in, "PHP"); got != want {
			t.Fatalf("%d: expected %q, got %q", in, want, got)
		}
	}
}

func TestViolationLines(t *testing.T) {
	got := ViolationLines(json.RawMessage(`["no permit", {"code":"RA-8749 s.19","description":"excess emissions"}, {"description":"open burning"}]`))
	want := []string{"no permit", "RA-8749 s.19: excess emissions", "open burning"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if got := ViolationLines(json.RawMessage(`{"free":"form"}`)); len(got) != 1 {
		t.Fatalf("expected non-array payload shown verbatim, got %v", got)
	}
}

func TestRenderNotice_EscapesAndIncludesDeadline(t *testing.T) {
	issued := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	m, err := RenderNotice(NoticeData{
		Kind:         "NOV",
		CaseCode:     "INSP-2026-000001",
		Law:          "PD-1586",
		Recipient:    Recipient{Name: "Acme <Plant>", Email: "ops@acme.test"},
		Violations:   []string{"no ECC"},
		PenaltyMinor: 1250000,
		Currency:     "PHP",
		IssuedAt:     issued,
		Deadline:     issued.AddDate(0, 0, 30),
	}, "case-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if m.Subject != "Notice of Violation - INSP-2026-000001" {
		t.Fatalf("unexpected subject %q", m.Subject)
	}
	if strings.Contains(m.HTML, "<Plant>") || !strings.Contains(m.HTML, "Acme &lt;Plant&gt;") {
		t.Fatalf("expected recipient name escaped in html")
	}
	if !strings.Contains(m.Text, "March 3, 2026") || !strings.Contains(m.Text, "PHP 12,500.00") {
		t.Fatalf("expected deadline and penalty in text body:\n%s", m.Text)
	}
}

func TestLogDispatcher_ValidatesAndIssuesID(t *testing.T) {
	d := NewLogDispatcher()
	if _, err := d.Send(context.Background(), Message{Subject: "s", Text: "t"}); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	r, err := d.Send(context.Background(), Message{To: Recipient{Email: "a@b.test"}, Subject: "s", Text: "t"})
	if err != nil || !strings.HasPrefix(r.DispatchID, "log-") {
		t.Fatalf("expected log receipt, got %+v %v", r, err)
	}
}

func TestSendGridDispatcher_OnlyAcceptsSuccessStatus(t *testing.T) {
	cases := []struct {
		status int
		ok     bool
	}{
		{http.StatusAccepted, true},
		{http.StatusMultipleChoices, false},
		{http.StatusBadRequest, false},
		{http.StatusServiceUnavailable, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Message-Id", "sg-1")
			w.WriteHeader(tc.status)
		}))
		d := NewSendGridDispatcher("SG.test", "EMB Legal Unit", "legal@emb.test")
		d.client.BaseURL = srv.URL + "/v3/mail/send"

		r, err := d.Send(context.Background(), Message{CaseID: "c-1", Kind: "NOV", To: Recipient{Email: "a@b.test"}, Subject: "s", Text: "t"})
		srv.Close()
		if tc.ok {
			if err != nil || r.DispatchID != "sg-1" {
				t.Fatalf("status %d: expected accepted, got %+v %v", tc.status, r, err)
			}
			continue
		}
		if !errors.Is(err, ErrRejected) {
			t.Fatalf("status %d: expected ErrRejected, got %v", tc.status, err)
		}
	}
}
