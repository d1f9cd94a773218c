package provider

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// Resend sends email via the Resend HTTP API.
type Resend struct {
	client *resend.Client
}

// NewResend builds a Resend provider from an API key.
func NewResend(apiKey string) *Resend {
	return &Resend{client: resend.NewClient(apiKey)}
}

// Name returns the provider identifier.
func (p *Resend) Name() string { return "resend" }

// Send delivers req via the Resend API.
func (p *Resend) Send(ctx context.Context, req *Request) error {
	params := &resend.SendEmailRequest{
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
	}
	if req.HTML != "" {
		params.Html = req.HTML
	} else {
		params.Text = req.Body
	}

	if _, err := p.client.Emails.Send(params); err != nil {
		return fmt.Errorf("Resend send failed: %w", err)
	}
	return nil
}
