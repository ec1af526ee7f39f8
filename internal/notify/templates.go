package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

// NoticeData is everything a NOV or NOO email shows.
type NoticeData struct {
	Kind          string // NOV | NOO
	CaseCode      string
	Law           string
	Recipient     Recipient
	Violations    []string
	PenaltyMinor  int64
	Currency      string
	IssuedAt      time.Time
	Deadline      time.Time
	Establishment string
}

func (d NoticeData) Title() string {
	if d.Kind == "NOO" {
		return "Notice of Order"
	}
	return "Notice of Violation"
}

func (d NoticeData) Penalty() string { return FormatMinor(d.PenaltyMinor, d.Currency) }

func (d NoticeData) DeadlineDate() string { return d.Deadline.UTC().Format("January 2, 2006") }

func (d NoticeData) IssuedDate() string { return d.IssuedAt.UTC().Format("January 2, 2006") }

// FormatMinor renders an amount in minor units as "PHP 12,500.00".
func FormatMinor(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	whole := fmt.Sprint(minor / 100)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := fmt.Sprintf("%s%s.%02d", sign, b.String(), minor%100)
	if currency != "" {
		out = currency + " " + out
	}
	return out
}

// ViolationLines flattens the opaque violations payload for display. It
// accepts a JSON array of strings or of objects with a "description" (or
// "code") field; anything else is shown verbatim.
func ViolationLines(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{string(raw)}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		var s string
		if err := json.Unmarshal(it, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal(it, &obj); err == nil && (obj.Description != "" || obj.Code != "") {
			switch {
			case obj.Code != "" && obj.Description != "":
				out = append(out, obj.Code+": "+obj.Description)
			case obj.Description != "":
				out = append(out, obj.Description)
			default:
				out = append(out, obj.Code)
			}
			continue
		}
		out = append(out, string(it))
	}
	return out
}

var noticeHTML = htmltemplate.Must(htmltemplate.New("notice.html").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}} - {{.CaseCode}}</title></head>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>{{.Title}}</h2>
  <p>Reference: <strong>{{.CaseCode}}</strong> ({{.Law}})</p>
  <p>Issued: {{.IssuedDate}}</p>
  <p>Dear {{.Recipient.Name}},</p>
  {{- if .Establishment}}
  <p>Establishment: {{.Establishment}}</p>
  {{- end}}
  <p>The inspection found the following violations:</p>
  <ul>
  {{- range .Violations}}
    <li>{{.}}</li>
  {{- end}}
  </ul>
  {{- if gt .PenaltyMinor 0}}
  <p>Penalty assessed: <strong>{{.Penalty}}</strong></p>
  {{- end}}
  <p>You are required to comply on or before <strong>{{.DeadlineDate}}</strong>.</p>
</body>
</html>
`))

var noticeText = texttemplate.Must(texttemplate.New("notice.txt").Parse(`{{.Title}}
Reference: {{.CaseCode}} ({{.Law}})
Issued: {{.IssuedDate}}

Dear {{.Recipient.Name}},
{{if .Establishment}}
Establishment: {{.Establishment}}
{{end}}
The inspection found the following violations:
{{range .Violations}}  - {{.}}
{{end}}{{if gt .PenaltyMinor 0}}
Penalty assessed: {{.Penalty}}
{{end}}
You are required to comply on or before {{.DeadlineDate}}.
`))

// RenderNotice builds the email for a legal notice. The returned message is
// also the content snapshot stored with the notice.
func RenderNotice(d NoticeData, caseID string) (Message, error) {
	var html, text bytes.Buffer
	if err := noticeHTML.Execute(&html, d); err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}
	if err := noticeText.Execute(&text, d); err != nil {
		return Message{}, fmt.Errorf("render text: %w", err)
	}
	return Message{
		To:      d.Recipient,
		Subject: fmt.Sprintf("%s - %s", d.Title(), d.CaseCode),
		HTML:    html.String(),
		Text:    text.String(),
		CaseID:  caseID,
		Kind:    d.Kind,
	}, nil
}
