package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"sync"
	"time"
)

// SMTP sends email over a persistent, exclusively-owned SMTP connection,
// reconnecting on a disconnected or stale connection (spec.md §4.3).
type SMTP struct {
	host     string
	port     string
	user     string
	password string
	mimeType string

	mu     sync.Mutex
	client *smtp.Client
}

// NewSMTP builds an SMTP provider. It does not connect until the first send.
func NewSMTP(host, port, user, password, mimeType string) *SMTP {
	return &SMTP{host: host, port: port, user: user, password: password, mimeType: mimeType}
}

// Name returns the provider identifier.
func (p *SMTP) Name() string { return "smtp" }

// Send delivers req over the persistent connection, reconnecting once on
// failure before giving up.
func (p *SMTP) Send(ctx context.Context, req *Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := p.buildMessage(req)

	client, err := p.getClient()
	if err != nil {
		return err
	}

	if err := p.sendOnClient(client, req.From, req.To, msg); err != nil {
		slog.Warn("SMTP send failed, reconnecting", "error", err)
		p.client.Close()
		p.client = nil
		client, err = p.getClient()
		if err != nil {
			return err
		}
		return p.sendOnClient(client, req.From, req.To, msg)
	}
	return nil
}

// Close releases the persistent connection, if any.
func (p *SMTP) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Quit()
		p.client = nil
	}
}

func (p *SMTP) getClient() (*smtp.Client, error) {
	if p.client != nil {
		if err := p.client.Noop(); err == nil {
			return p.client, nil
		}
		p.client.Close()
		p.client = nil
	}
	client, err := p.connect()
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

func (p *SMTP) connect() (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%s", p.host, p.port)
	var client *smtp.Client

	if p.port == "465" {
		conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: p.host})
		if err != nil {
			return nil, fmt.Errorf("connecting to SMTP server with TLS: %w", err)
		}
		client, err = smtp.NewClient(conn, p.host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("creating SMTP client: %w", err)
		}
	} else {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("connecting to SMTP server: %w", err)
		}
		client, err = smtp.NewClient(conn, p.host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("creating SMTP client: %w", err)
		}
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: p.host}); err != nil {
				client.Close()
				return nil, fmt.Errorf("starting TLS: %w", err)
			}
		}
	}

	if p.user != "" && p.password != "" {
		auth := smtp.PlainAuth("", p.user, p.password, p.host)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	slog.Info("SMTP connection established", "host", p.host, "port", p.port)
	return client, nil
}

func (p *SMTP) sendOnClient(client *smtp.Client, from string, to []string, msg []byte) error {
	if err := client.Reset(); err != nil {
		return fmt.Errorf("SMTP RSET failed: %w", err)
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("setting sender %s: %w", from, err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("setting recipient %s: %w", recipient, err)
		}
	}
	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("opening data writer: %w", err)
	}
	if _, err := writer.Write(msg); err != nil {
		writer.Close()
		return fmt.Errorf("writing email data: %w", err)
	}
	return writer.Close()
}

func (p *SMTP) buildMessage(req *Request) []byte {
	contentType := "text/plain"
	body := req.Body
	if req.HTML != "" {
		contentType = "text/html"
		body = req.HTML
	}
	if p.mimeType != "" {
		contentType = p.mimeType
	}

	var msg bytes.Buffer
	now := time.Now().Format(time.RFC1123Z)
	msg.WriteString(fmt.Sprintf("From: %s\r\n", req.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(req.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", req.Subject))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", now))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: %s; charset=UTF-8\r\n", contentType))
	msg.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.Bytes()
}
