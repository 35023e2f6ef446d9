package hook

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/roach88/doctype/internal/expr"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/notify"
	"github.com/roach88/doctype/internal/value"
)

// runScript executes the hook program against a copy of the data and
// applies the copy only when the whole program succeeds.
func (d *Dispatcher) runScript(h model.Hook, ev Event) (string, error) {
	prog, err := expr.CompileProgram(h.Script)
	if err != nil {
		return "", actionErrorf(err, "script does not compile")
	}
	env := ConditionEnv(ev.Document, ev.Actor, ev.OldData)
	data := env["data"].(value.Object)
	if err := prog.Exec(env); err != nil {
		return "", actionErrorf(err, "script failed")
	}
	ev.Document.Data = data
	return "script executed", nil
}

// WebhookPayload is the JSON body posted by webhook hooks.
func WebhookPayload(ev Event) value.Object {
	doc := ev.Document
	return value.Object{
		"event":   value.String(ev.Type),
		"doctype": value.String(doc.Doctype),
		"document": value.Object{
			"id":         value.String(doc.ID),
			"name":       value.String(doc.Name),
			"data":       orEmpty(doc.Data).Clone(),
			"doc_status": value.Int(doc.DocStatus),
			"created_at": timeValue(doc.CreatedAt),
			"updated_at": timeValue(doc.UpdatedAt),
		},
		"actor":     ActorValue(ev.Actor),
		"timestamp": timeValue(ev.Time),
	}
}

func (d *Dispatcher) runWebhook(ctx context.Context, h model.Hook, ev Event) (string, error) {
	if h.WebhookURL == "" {
		return "", actionErrorf(nil, "webhook hook has no url")
	}
	body, err := value.MarshalCanonical(WebhookPayload(ev))
	if err != nil {
		return "", actionErrorf(err, "encode webhook payload")
	}
	resp, err := d.webhooks.Send(ctx, notify.Webhook{
		URL:     h.WebhookURL,
		Headers: h.WebhookHeaders,
		Payload: body,
		Timeout: d.webhookTimeout,
	})
	if err != nil {
		return "", actionErrorf(err, "webhook request failed")
	}
	out := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Body)
	if !resp.OK() {
		return "", actionErrorf(nil, "webhook returned HTTP %d: %s", resp.StatusCode, resp.Body)
	}
	return out, nil
}

func (d *Dispatcher) runEmail(ctx context.Context, h model.Hook, ev Event) (string, error) {
	tctx := templateContext(ev)
	subjectSrc := h.EmailSubject
	if subjectSrc == "" {
		subjectSrc = fmt.Sprintf("[%s] Document Update", ev.Document.Doctype)
	}
	subject, err := render("subject", subjectSrc, tctx)
	if err != nil {
		return "", err
	}
	body, err := render("body", h.EmailTemplate, tctx)
	if err != nil {
		return "", err
	}

	var recipients []string
	for _, r := range h.EmailRecipients {
		addr, err := render("recipient", r, tctx)
		if err != nil {
			return "", err
		}
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	if len(recipients) == 0 {
		return "", actionErrorf(nil, "email hook has no recipients")
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOr(d.emailTimeout, notify.DefaultEmailTimeout))
	defer cancel()

	delivered := 0
	var lastErr error
	for _, to := range recipients {
		n, err := d.mailer.SendEmail(ctx, notify.Email{To: []string{to}, From: d.mailFrom, Subject: subject, Body: body})
		if err != nil {
			d.logger.WarnContext(ctx, "email delivery failed", "hook", h.Name, "to", to, "error", err)
			lastErr = err
			continue
		}
		delivered += n
	}
	if delivered == 0 {
		return "", actionErrorf(lastErr, "email delivery failed for all %d recipient(s)", len(recipients))
	}
	return fmt.Sprintf("email sent to %d of %d recipient(s)", delivered, len(recipients)), nil
}

func (d *Dispatcher) runNotification(ctx context.Context, h model.Hook, ev Event) (string, error) {
	tctx := templateContext(ev)
	msg, err := render("message", h.Message, tctx)
	if err != nil {
		return "", err
	}
	if msg == "" {
		msg = fmt.Sprintf("%s %s: %s", ev.Document.Doctype, ev.Document.Name, ev.Type)
	}
	n := notify.Notification{
		Recipients: h.EmailRecipients,
		Subject:    h.EmailSubject,
		Message:    msg,
		Doctype:    ev.Document.Doctype,
		DocumentID: ev.Document.ID,
	}
	if err := d.notifier.Notify(ctx, n); err != nil {
		return "", actionErrorf(err, "notification failed")
	}
	return "notification sent", nil
}

func timeoutOr(t, def time.Duration) time.Duration {
	if t <= 0 {
		return def
	}
	return t
}

// templateContext exposes the event to text/template as plain maps:
// {{.doctype}}, {{.event}}, {{.document.name}}, {{.data.total}},
// {{.actor.email}}.
func templateContext(ev Event) map[string]any {
	return map[string]any{
		"doctype":  ev.Document.Doctype,
		"event":    string(ev.Type),
		"document": value.ToAny(DocumentValue(ev.Document)),
		"data":     value.ToAny(orEmpty(ev.Document.Data)),
		"actor":    value.ToAny(ActorValue(ev.Actor)),
	}
}

func render(name, src string, data map[string]any) (string, error) {
	if !strings.Contains(src, "{{") {
		return src, nil
	}
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", actionErrorf(err, "%s template does not parse", name)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", actionErrorf(err, "%s template failed", name)
	}
	return b.String(), nil
}
