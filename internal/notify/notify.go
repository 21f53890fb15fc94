// Package notify delivers purchase confirmations. Delivery is best-effort:
// callers log failures and never roll back a fulfillment because of one.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/roach88/evertag/internal/domain"
)

// Message is one outgoing email.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

var bodyTemplate = template.Must(template.New("confirmation").Parse(`Thank you for your order {{.Order.OrderNumber}}.

Your memorial "{{.Memorial.Name}}" has been created.
{{if .AccessCode.Synthetic}}Your tag is being prepared by hand; we will email you when it ships.
{{else}}Your tag code is {{.AccessCode.Code}}. Scan the tag once it arrives to bring the memorial online.
{{end}}{{if .ScanURL}}
Memorial link: {{.ScanURL}}
{{end}}`))

type bodyData struct {
	domain.Fulfillment
	ScanURL string
}

// Compose builds the confirmation email for f. baseURL, when set, is the
// public site root used for the scan link.
func Compose(f domain.Fulfillment, from, baseURL string) (Message, error) {
	data := bodyData{Fulfillment: f}
	if baseURL != "" && f.AccessCode.Code != "" && !f.AccessCode.Synthetic {
		data.ScanURL = strings.TrimRight(baseURL, "/") + "/scan/" + f.AccessCode.Code
	}

	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("compose: %w", err)
	}
	return Message{
		From:    from,
		To:      f.Order.CustomerEmail,
		Subject: fmt.Sprintf("Your memorial order %s", f.Order.OrderNumber),
		Text:    buf.String(),
	}, nil
}

// LogNotifier writes confirmations to the log instead of sending them.
// Used when no mail API is configured.
type LogNotifier struct {
	From    string
	BaseURL string
	Logger  *slog.Logger
}

// Notify logs the composed message.
func (n LogNotifier) Notify(ctx context.Context, f domain.Fulfillment) error {
	msg, err := Compose(f, n.From, n.BaseURL)
	if err != nil {
		return err
	}
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "confirmation email (not sent)",
		"to", msg.To, "subject", msg.Subject, "order_id", f.Order.ID)
	return nil
}
