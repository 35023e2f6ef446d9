package workflow

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/expr"
	"github.com/roach88/doctype/internal/hook"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/notify"
	"github.com/roach88/doctype/internal/value"
)

// HistoryField is the data key holding the transition log.
const HistoryField = "workflow_history"

// AvailableTransitions lists the transitions leaving state that the actor
// holds a role for. Transitions with no role restriction are open to all;
// superusers see every transition.
func AvailableTransitions(wf *model.Workflow, state string, actor model.Actor) []model.Transition {
	var out []model.Transition
	for _, t := range wf.Transitions {
		if t.From == state && actor.HasAnyRole(t.AllowedRoles) {
			out = append(out, t)
		}
	}
	return out
}

// CanTransition reports whether the actor may take the labelled
// transition from state. Checks run in order: current state, roles,
// comment, condition. The reason names the first failed check.
func CanTransition(wf *model.Workflow, state string, doc *model.Document, label string, actor model.Actor, comment string) (bool, string) {
	t, reason := find(wf, state, label)
	if reason != "" {
		return false, reason
	}
	if !actor.HasAnyRole(t.AllowedRoles) {
		return false, "actor does not have required role(s): " + strings.Join(t.AllowedRoles, ", ")
	}
	if t.RequireComment && strings.TrimSpace(comment) == "" {
		return false, fmt.Sprintf("transition %q requires a comment", label)
	}
	if t.Condition != "" {
		ok, err := expr.EvalBool(t.Condition, hook.ConditionEnv(doc, actor, nil))
		if err != nil || !ok {
			return false, "transition condition not met"
		}
	}
	return true, ""
}

func find(wf *model.Workflow, state, label string) (model.Transition, string) {
	var fromStates []string
	for _, t := range wf.Transitions {
		if t.Label != label {
			continue
		}
		if t.From == state {
			return t, ""
		}
		fromStates = append(fromStates, t.From)
	}
	if len(fromStates) == 0 {
		return model.Transition{}, fmt.Sprintf("transition %q not found in workflow %q", label, wf.Name)
	}
	return model.Transition{}, fmt.Sprintf("document is in state %q, transition %q requires %s",
		state, label, quoteJoin(fromStates))
}

// Request describes one transition attempt.
type Request struct {
	Workflow *model.Workflow
	State    string
	Document *model.Document
	Label    string
	Actor    model.Actor
	Comment  string
	Time     time.Time

	// Slug and SiteURL build the document link in messages.
	Slug    string
	SiteURL string

	Logger *slog.Logger
}

// Outcome is what a transition produced. Document data has already been
// updated; the caller persists it, stores the new state and, after
// commit, delivers Notifications and Emails.
type Outcome struct {
	Transition model.Transition
	From       string
	To         string
	Entry      value.Object

	// Recipients are actor ids or addresses: the creator, assigned_to and
	// watchers, without duplicates.
	Recipients    []string
	Subject       string
	Notifications []notify.Notification
	Emails        []notify.Email
	Warnings      []string
}

// State returns the workflow state record to store.
func (o *Outcome) State(req Request) model.DocumentWorkflowState {
	return model.DocumentWorkflowState{
		DocumentID:   req.Document.ID,
		Workflow:     req.Workflow.Name,
		CurrentState: o.To,
		ChangedBy:    req.Actor.ID,
		ChangedAt:    req.Time,
	}
}

// Execute performs the transition on req.Document. Eligibility is checked
// again first; a refusal is errs.KindTransitionDenied.
func Execute(req Request) (*Outcome, error) {
	doc := req.Document
	logger := req.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ok, reason := CanTransition(req.Workflow, req.State, doc, req.Label, req.Actor, req.Comment)
	if !ok {
		return nil, errs.New(errs.KindTransitionDenied, "%s", reason).
			WithDocument(doc.Doctype, doc.ID).
			WithDetail("transition", req.Label).
			WithDetail("state", req.State)
	}
	t, _ := find(req.Workflow, req.State, req.Label)

	if doc.Data == nil {
		doc.Data = value.Object{}
	}
	entry := value.Object{
		"from_state": value.String(t.From),
		"to_state":   value.String(t.To),
		"changed_by": value.String(req.Actor.ID),
		"changed_at": value.String(req.Time.UTC().Format(time.RFC3339Nano)),
		"comment":    value.String(req.Comment),
	}
	history, _ := doc.Data[HistoryField].(value.Array)
	next := make(value.Array, 0, len(history)+1)
	doc.Data[HistoryField] = append(append(next, history...), entry)

	out := &Outcome{
		Transition: t,
		From:       t.From,
		To:         t.To,
		Entry:      entry,
		Recipients: Recipients(doc),
		Subject:    fmt.Sprintf("%s - State Changed to %s", doc.Doctype, t.To),
	}

	body := defaultMessage(req, t)
	for _, a := range t.Actions {
		switch a.Type {
		case model.ActionSetField:
			v, err := value.FromAny(a.Value)
			if err != nil {
				return nil, errs.Wrap(errs.KindSchema, err, "set_field %s: invalid value", a.Field).
					WithDocument(doc.Doctype, doc.ID)
			}
			doc.Data[a.Field] = v
		case model.ActionNotify:
			out.Notifications = append(out.Notifications, notify.Notification{
				Recipients: pick(a.Recipients, out.Recipients),
				Subject:    out.Subject,
				Message:    orDefault(a.Message, body),
				Doctype:    doc.Doctype,
				DocumentID: doc.ID,
			})
		case model.ActionSendEmail:
			out.Emails = append(out.Emails, notify.Email{
				To:      pick(a.Recipients, out.Recipients),
				Subject: out.Subject,
				Body:    orDefault(a.Message, body),
			})
		case model.ActionCallHook:
			logger.Info("workflow webhook action", "workflow", req.Workflow.Name, "transition", t.Label,
				"document", doc.ID, "url", a.URL)
		default:
			msg := fmt.Sprintf("unknown action type %q ignored", a.Type)
			logger.Warn("workflow action skipped", "workflow", req.Workflow.Name, "transition", t.Label, "type", a.Type)
			out.Warnings = append(out.Warnings, msg)
		}
	}
	return out, nil
}

// Recipients collects who hears about a transition: the creator, the
// assigned_to field and the watchers field (a list or comma-separated
// text).
func Recipients(doc *model.Document) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	add(doc.CreatedBy)
	if v, ok := doc.Data["assigned_to"].(value.String); ok {
		add(string(v))
	}
	switch w := doc.Data["watchers"].(type) {
	case value.Array:
		for _, item := range w {
			if s, ok := item.(value.String); ok {
				add(string(s))
			}
		}
	case value.String:
		for _, s := range strings.Split(string(w), ",") {
			add(s)
		}
	}
	return out
}

func defaultMessage(req Request, t model.Transition) string {
	doc := req.Document
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s moved from %s to %s by %s.", doc.Doctype, doc.Name, t.From, t.To, req.Actor.ID)
	if req.Comment != "" {
		fmt.Fprintf(&b, "\nComment: %s", req.Comment)
	}
	if req.SiteURL != "" && req.Slug != "" {
		fmt.Fprintf(&b, "\n%s/doctypes/%s/%s/", strings.TrimRight(req.SiteURL, "/"), req.Slug, doc.ID)
	}
	return b.String()
}

func pick(explicit, fallback []string) []string {
	if len(explicit) > 0 {
		return explicit
	}
	return fallback
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func quoteJoin(ss []string) string {
	q := make([]string, len(ss))
	for i, s := range ss {
		q[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(q, " or ")
}
