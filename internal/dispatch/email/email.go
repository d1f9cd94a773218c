// Package email implements the email channel dispatcher: SMTP by default,
// with AWS SES and Resend as alternate HTTP-API providers behind the same
// Configure surface (spec.md §4.3, SPEC_FULL.md §9).
package email

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/russross/blackfriday/v2"
	"github.com/valyala/fasttemplate"

	"notifier/internal/dispatch"
	"notifier/internal/dispatch/email/provider"
	"notifier/internal/dispatch/payload"
	"notifier/internal/notification"
)

func init() {
	dispatch.Register("email", func() dispatch.Dispatcher { return &Dispatcher{} })
}

// Dispatcher delivers notifications by email.
type Dispatcher struct {
	provider provider.Provider
	fromAddr string

	bodyTemplate    *fasttemplate.Template
	subjectTemplate *fasttemplate.Template
	mimeType        string
}

// Kind returns the stable dispatcher identifier.
func (d *Dispatcher) Kind() string { return "email" }

// Configure builds the configured provider (smtp | ses | resend) and
// precompiles the optional body/subject templates.
func (d *Dispatcher) Configure(section map[string]any) error {
	providerName, _ := section["provider"].(string)
	if providerName == "" {
		providerName = "smtp"
	}
	d.fromAddr, _ = section["from_addr"].(string)
	d.mimeType = "text/plain"

	switch providerName {
	case "smtp":
		host, _ := section["server"].(string)
		port := "587"
		if v, ok := section["port"].(int); ok && v > 0 {
			port = strconv.Itoa(v)
		}
		user, _ := section["user"].(string)
		password, _ := section["password"].(string)
		d.provider = provider.NewSMTP(host, port, user, password, "")
	case "ses":
		region, _ := section["region"].(string)
		if region == "" {
			region = "us-east-1"
		}
		ses, err := provider.NewSES(context.Background(), region)
		if err != nil {
			return fmt.Errorf("configuring SES provider: %w", err)
		}
		d.provider = ses
	case "resend":
		apiKey, _ := section["api_key"].(string)
		if apiKey == "" {
			return fmt.Errorf("resend provider requires email.api_key")
		}
		d.provider = provider.NewResend(apiKey)
	default:
		return fmt.Errorf("unknown email provider %q", providerName)
	}

	if tmplSection, ok := section["template"].(map[string]any); ok {
		if err := d.configureTemplates(tmplSection); err != nil {
			return err
		}
	}

	return nil
}

func (d *Dispatcher) configureTemplates(section map[string]any) error {
	text, _ := section["text"].(string)
	if file, _ := section["template_file"].(string); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading email template_file %s: %w", file, err)
		}
		text = string(data)
	}
	if mt, _ := section["mime_type"].(string); mt != "" {
		d.mimeType = mt
	}
	if text != "" {
		t, err := fasttemplate.NewTemplate(text, "{{", "}}")
		if err != nil {
			return fmt.Errorf("parsing email body template: %w", err)
		}
		d.bodyTemplate = t
	}
	if subject, _ := section["subject"].(string); subject != "" {
		t, err := fasttemplate.NewTemplate(subject, "{{", "}}")
		if err != nil {
			return fmt.Errorf("parsing email subject template: %w", err)
		}
		d.subjectTemplate = t
	}
	return nil
}

// SendNotification renders and sends one email to notification.Address (a
// comma-separated recipient list).
func (d *Dispatcher) SendNotification(ctx context.Context, n *notification.Notification) (bool, error) {
	recipients := parseRecipients(n.Address)
	if len(recipients) == 0 {
		return false, fmt.Errorf("no valid email recipients in address %q", n.Address)
	}

	req := &provider.Request{
		From:    d.fromAddr,
		To:      recipients,
		Subject: d.renderSubject(n),
	}
	if d.mimeType == "text/html" {
		req.HTML = d.renderBody(n, true)
	} else {
		req.Body = d.renderBody(n, false)
	}

	if err := d.provider.Send(ctx, req); err != nil {
		return false, nil
	}
	return true, nil
}

func (d *Dispatcher) renderSubject(n *notification.Notification) string {
	if d.subjectTemplate == nil {
		return defaultSubject(n)
	}
	return d.subjectTemplate.ExecuteString(templateVars(n))
}

// defaultSubject picks a phrase per state, matching the default subject
// template spec.md §4.3 describes.
func defaultSubject(n *notification.Notification) string {
	switch n.State {
	case "ALARM":
		return fmt.Sprintf("ALARM %s on %s", n.Severity, n.AlarmName)
	case "OK":
		return fmt.Sprintf("Cleared: %s", n.AlarmName)
	default:
		return fmt.Sprintf("%s: %s", n.State, n.AlarmName)
	}
}

func (d *Dispatcher) renderBody(n *notification.Notification, html bool) string {
	description := n.AlarmDescription
	if html {
		description = string(blackfriday.Run([]byte(description)))
	} else {
		description = payload.MarkdownLinksToPlain(description)
	}

	if d.bodyTemplate == nil {
		return builtinBody(n, description)
	}

	vars := templateVars(n)
	vars["alarm_description"] = description
	return d.bodyTemplate.ExecuteString(vars)
}

func templateVars(n *notification.Notification) map[string]any {
	return map[string]any{
		"alarm_id":          n.AlarmID,
		"alarm_name":        n.AlarmName,
		"alarm_description": n.AlarmDescription,
		"state":             n.State,
		"old_state":         n.OldState,
		"message":           n.Message,
		"severity":          n.Severity,
		"link":              n.Link,
	}
}

// builtinBody picks one of three plain bodies by the notification's
// dimension shape, matching the "number of distinct hostname dimensions and
// presence of target_host" selection spec.md §4.3 describes.
func builtinBody(n *notification.Notification, description string) string {
	hostname, hasHostname := n.Dimensions["hostname"]
	_, hasTargetHost := n.Dimensions["target_host"]

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s at %s\n\n", n.AlarmName, n.State, n.Message))
	sb.WriteString(description)
	sb.WriteString("\n\n")

	switch {
	case hasTargetHost:
		sb.WriteString(fmt.Sprintf("Target host: %s\n", n.Dimensions["target_host"]))
	case hasHostname && !strings.Contains(hostname, ","):
		sb.WriteString(fmt.Sprintf("Host: %s\n", hostname))
	case hasHostname:
		sb.WriteString(fmt.Sprintf("Hosts: %s\n", hostname))
	}

	sb.WriteString(fmt.Sprintf("Link: %s\n", n.Link))
	return sb.String()
}

func parseRecipients(address string) []string {
	parts := strings.Split(address, ",")
	recipients := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			recipients = append(recipients, trimmed)
		}
	}
	return recipients
}
