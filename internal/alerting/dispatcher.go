package alerting

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vulnwatch/vulnwatch-go/internal/datastore/entities"
	"github.com/vulnwatch/vulnwatch-go/internal/logger"
)

// EmailSender abstracts the email delivery engine for testability.
type EmailSender interface {
	SendVulnerabilityAlert(ctx context.Context, to string, rule *entities.AlertRule, vuln *entities.Vulnerability) error
}

// PushSender abstracts the push notification provider.
type PushSender interface {
	Send(ctx context.Context, title, message string) error
}

// RecipientDirectory resolves a rule owner's email address. Owned by the
// surrounding application's user store.
type RecipientDirectory interface {
	EmailFor(ctx context.Context, userID uint) (string, error)
}

// ChannelResult is the outcome of one channel attempt.
type ChannelResult struct {
	Channel string
	Target  string
	Err     error
}

// DispatchReport aggregates per-channel outcomes for one trigger.
type DispatchReport struct {
	Results []ChannelResult
}

// Attempted returns the number of channels attempted.
func (r *DispatchReport) Attempted() int {
	return len(r.Results)
}

// Succeeded reports whether at least one attempted channel succeeded.
// With no enabled channels there is nothing to deliver, which counts as
// success.
func (r *DispatchReport) Succeeded() bool {
	if len(r.Results) == 0 {
		return true
	}
	for _, res := range r.Results {
		if res.Err == nil {
			return true
		}
	}
	return false
}

// Failures returns the results of failed channel attempts.
func (r *DispatchReport) Failures() []ChannelResult {
	var out []ChannelResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

const (
	defaultWebhookTimeout = 30 * time.Second
	webhookBodyLimit      = 4096
)

// Dispatcher fans one triggered alert out to every enabled action channel.
// Channels are attempted independently to completion; one channel's failure
// never blocks or fails the others.
type Dispatcher struct {
	email      EmailSender
	push       PushSender
	recipients RecipientDirectory
	httpClient *http.Client
	log        logger.Logger
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHTTPClient overrides the webhook HTTP client.
func WithHTTPClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.httpClient = client }
}

// NewDispatcher creates a Dispatcher. email, push, and recipients may be nil
// when the corresponding channel is not configured; attempts on a nil channel
// report a configuration failure for that channel only.
func NewDispatcher(email EmailSender, push PushSender, recipients RecipientDirectory, log logger.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		email:      email,
		push:       push,
		recipients: recipients,
		httpClient: &http.Client{Timeout: defaultWebhookTimeout},
		log:        log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch attempts every channel enabled in the rule's actions and returns
// the per-channel report. Failures are logged here as a side effect of
// inspecting the results; callers decide what the report means for the
// trigger's status.
func (d *Dispatcher) Dispatch(ctx context.Context, rule *entities.AlertRule, vuln *entities.Vulnerability) *DispatchReport {
	report := &DispatchReport{}
	actions := &rule.Actions

	if actions.Email {
		err := d.dispatchEmail(ctx, rule, vuln)
		report.Results = append(report.Results, ChannelResult{Channel: ChannelEmail, Err: err})
	}
	if actions.Push {
		err := d.dispatchPush(ctx, rule, vuln)
		report.Results = append(report.Results, ChannelResult{Channel: ChannelPush, Err: err})
	}
	if actions.Webhook != nil {
		err := d.dispatchWebhook(ctx, actions.Webhook, rule, vuln)
		report.Results = append(report.Results, ChannelResult{Channel: ChannelWebhook, Target: actions.Webhook.URL, Err: err})
	}
	for i := range actions.ChatWebhooks {
		cw := &actions.ChatWebhooks[i]
		err := d.dispatchChatWebhook(ctx, cw, rule, vuln)
		report.Results = append(report.Results, ChannelResult{Channel: ChannelChatWebhook, Target: cw.URL, Err: err})
	}

	for _, failure := range report.Failures() {
		d.log.Error("notification channel failed",
			logger.String("channel", failure.Channel),
			logger.String("target", failure.Target),
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.String("cve_id", vuln.CVEID),
			logger.Error(failure.Err))
	}
	return report
}

func (d *Dispatcher) dispatchEmail(ctx context.Context, rule *entities.AlertRule, vuln *entities.Vulnerability) error {
	if d.email == nil {
		return fmt.Errorf("email channel not configured")
	}
	if d.recipients == nil {
		return fmt.Errorf("recipient directory not configured")
	}
	to, err := d.recipients.EmailFor(ctx, rule.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve recipient for user %d: %w", rule.UserID, err)
	}
	return d.email.SendVulnerabilityAlert(ctx, to, rule, vuln)
}

func (d *Dispatcher) dispatchPush(ctx context.Context, rule *entities.AlertRule, vuln *entities.Vulnerability) error {
	if d.push == nil {
		return fmt.Errorf("push channel not configured")
	}
	title := fmt.Sprintf("Alert: %s", rule.Name)
	message := fmt.Sprintf("%s (%s, CVSS %.1f) matched your alert rule", vuln.CVEID, vuln.Severity, vuln.CVSSScore)
	return d.push.Send(ctx, title, message)
}

func (d *Dispatcher) dispatchWebhook(ctx context.Context, hook *entities.WebhookAction, rule *entities.AlertRule, vuln *entities.Vulnerability) error {
	method := hook.Method
	if method == "" {
		method = http.MethodPost
	}

	body := renderBodyTemplate(hook.BodyTemplate, rule, vuln)
	req, err := http.NewRequestWithContext(ctx, method, hook.URL, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hook.Headers {
		req.Header.Set(k, v)
	}

	return d.doHTTP(req, "webhook")
}

// Chat webhook payload shapes are fixed per platform.
func (d *Dispatcher) dispatchChatWebhook(ctx context.Context, cw *entities.ChatWebhookAction, rule *entities.AlertRule, vuln *entities.Vulnerability) error {
	text := fmt.Sprintf("*%s*\n%s (%s, CVSS %.1f) matched alert rule %q",
		vuln.CVEID, vuln.Description, vuln.Severity, vuln.CVSSScore, rule.Name)

	var payload string
	switch cw.Platform {
	case entities.ChatPlatformSlack:
		payload = fmt.Sprintf(`{"text": %s}`, strconv.Quote(text))
		if cw.Channel != "" {
			payload = fmt.Sprintf(`{"channel": %s, "text": %s}`, strconv.Quote(cw.Channel), strconv.Quote(text))
		}
	case entities.ChatPlatformDiscord:
		payload = fmt.Sprintf(`{"content": %s}`, strconv.Quote(text))
	default:
		return fmt.Errorf("unknown chat webhook platform %q", cw.Platform)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cw.URL, strings.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build chat webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return d.doHTTP(req, cw.Platform)
}

func (d *Dispatcher) doHTTP(req *http.Request, kind string) error {
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", kind, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, webhookBodyLimit))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", kind, resp.StatusCode)
	}
	return nil
}

// renderBodyTemplate substitutes {{placeholder}} variables in a webhook body
// template. An empty template falls back to a default JSON payload.
func renderBodyTemplate(tmpl string, rule *entities.AlertRule, vuln *entities.Vulnerability) string {
	if tmpl == "" {
		var buf bytes.Buffer
		fmt.Fprintf(&buf, `{"cve_id": %s, "severity": %s, "cvss_score": %.1f, "rule_id": %d, "rule_name": %s}`,
			strconv.Quote(vuln.CVEID), strconv.Quote(vuln.Severity), vuln.CVSSScore, rule.ID, strconv.Quote(rule.Name))
		return buf.String()
	}
	return strings.NewReplacer(
		"{{cve_id}}", vuln.CVEID,
		"{{severity}}", vuln.Severity,
		"{{cvss_score}}", strconv.FormatFloat(vuln.CVSSScore, 'f', 1, 64),
		"{{description}}", vuln.Description,
		"{{rule_name}}", rule.Name,
		"{{rule_id}}", strconv.FormatUint(uint64(rule.ID), 10),
	).Replace(tmpl)
}
