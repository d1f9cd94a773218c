// Package provider defines the email provider interface implemented by the
// SMTP, SES, and Resend backends behind the email dispatcher's single
// Configure() surface.
package provider

import "context"

// Request is one rendered email ready to send.
type Request struct {
	From    string
	To      []string
	Subject string
	Body    string // plain text body
	HTML    string // HTML body, if the configured template renders HTML
}

// Provider is the interface every email backend implements.
type Provider interface {
	// Name returns the provider identifier ("smtp", "ses", "resend").
	Name() string
	// Send delivers req.
	Send(ctx context.Context, req *Request) error
}
