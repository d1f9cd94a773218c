// Package chat implements the chat-room channel dispatcher: a generic
// incoming-webhook POST with optional TLS/proxy overrides and an optional
// rendered template (spec.md §4.3).
package chat

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/valyala/fasttemplate"

	"notifier/internal/dispatch"
	"notifier/internal/dispatch/payload"
	"notifier/internal/notification"
)

func init() {
	dispatch.Register("chat", func() dispatch.Dispatcher { return &Dispatcher{} })
}

// Dispatcher posts a chat message to notification.Address, which carries
// the channel and token as query parameters.
type Dispatcher struct {
	client   *http.Client
	template *fasttemplate.Template
	mimeType string
}

// Kind returns the stable dispatcher identifier.
func (d *Dispatcher) Kind() string { return "chat" }

// Configure merges section over the {timeout: 5} default, builds a TLS
// transport honoring insecure/ca_certs/proxy, and precompiles an optional
// template.
func (d *Dispatcher) Configure(section map[string]any) error {
	timeout := 5
	if v, ok := section["timeout"].(int); ok && v > 0 {
		timeout = v
	}

	tlsConfig := &tls.Config{}
	if insecure, _ := section["insecure"].(bool); insecure {
		tlsConfig.InsecureSkipVerify = true
	}
	if caCertsPath, _ := section["ca_certs"].(string); caCertsPath != "" {
		pem, err := os.ReadFile(caCertsPath)
		if err != nil {
			return fmt.Errorf("reading ca_certs %s: %w", caCertsPath, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return fmt.Errorf("no valid certificates found in ca_certs %s", caCertsPath)
		}
		tlsConfig.RootCAs = pool
	}

	transport := &http.Transport{TLSClientConfig: tlsConfig}
	if proxyURL, _ := section["proxy"].(string); proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return fmt.Errorf("parsing proxy URL %s: %w", proxyURL, err)
		}
		transport.Proxy = http.ProxyURL(parsed)
	}

	d.client = &http.Client{Timeout: time.Duration(timeout) * time.Second, Transport: transport}
	d.mimeType = "text/plain"

	if tmplSection, ok := section["template"].(map[string]any); ok {
		text, _ := tmplSection["text"].(string)
		if file, _ := tmplSection["template_file"].(string); file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading template_file %s: %w", file, err)
			}
			text = string(data)
		}
		if text != "" {
			t, err := fasttemplate.NewTemplate(text, "{{", "}}")
			if err != nil {
				return fmt.Errorf("parsing chat template: %w", err)
			}
			d.template = t
		}
		if mt, _ := tmplSection["mime_type"].(string); mt != "" {
			d.mimeType = mt
		}
	}

	return nil
}

// SendNotification renders the message body and POSTs it to
// notification.Address. Success requires HTTP 2xx and, when the response
// declares JSON, a truthy "ok" field.
func (d *Dispatcher) SendNotification(ctx context.Context, n *notification.Notification) (bool, error) {
	body, err := d.buildBody(n)
	if err != nil {
		return false, fmt.Errorf("building chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Address, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		slog.Error("Chat request failed", "address", n.Address, "error", err)
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("Chat provider returned error status", "status", resp.StatusCode)
		return false, nil
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var decoded struct {
			OK bool `json:"ok"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err == nil && !decoded.OK {
			return false, nil
		}
	}

	return true, nil
}

func (d *Dispatcher) buildBody(n *notification.Notification) ([]byte, error) {
	description := payload.MarkdownLinksToChat(n.AlarmDescription)

	if d.template == nil {
		return json.Marshal(payload.ChatPlainPayload{
			Channel: channelFromAddress(n.Address),
			Text:    description,
		})
	}

	rendered := d.template.ExecuteString(map[string]any{
		"alarm_id":          n.AlarmID,
		"alarm_name":        n.AlarmName,
		"alarm_description": description,
		"state":             n.State,
		"old_state":         n.OldState,
		"message":           n.Message,
		"severity":          n.Severity,
	})

	if d.mimeType == "application/json" {
		var obj map[string]any
		if err := json.Unmarshal([]byte(rendered), &obj); err != nil {
			return nil, fmt.Errorf("rendered chat template is not valid JSON: %w", err)
		}
		if ch := channelFromAddress(n.Address); ch != "" {
			obj["channel"] = ch
		}
		return json.Marshal(obj)
	}

	return json.Marshal(payload.ChatPlainPayload{
		Channel: channelFromAddress(n.Address),
		Text:    rendered,
	})
}

// channelFromAddress hoists the "channel" query parameter, if present, out
// of the dispatcher's target URL into the message body (spec.md §4.3).
func channelFromAddress(address string) string {
	parsed, err := url.Parse(address)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("channel")
}
