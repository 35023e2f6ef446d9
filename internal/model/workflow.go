package model

import (
	"strings"
	"time"
)

// HookType is the lifecycle event a hook is bound to.
type HookType string

const (
	BeforeInsert HookType = "before_insert"
	AfterInsert  HookType = "after_insert"
	BeforeSave   HookType = "before_save"
	AfterSave    HookType = "after_save"
	BeforeSubmit HookType = "before_submit"
	AfterSubmit  HookType = "after_submit"
	BeforeDelete HookType = "before_delete"
	AfterDelete  HookType = "after_delete"
	OnChange     HookType = "on_change"
)

// HookTypes lists every hook type in lifecycle order.
var HookTypes = []HookType{
	BeforeInsert, AfterInsert,
	BeforeSave, AfterSave,
	BeforeSubmit, AfterSubmit,
	BeforeDelete, AfterDelete,
	OnChange,
}

// IsBefore reports whether a failure of this hook type aborts the write.
func (t HookType) IsBefore() bool {
	return strings.HasPrefix(string(t), "before_")
}

// HookAction is what a hook does when it fires.
type HookAction string

const (
	ActionScript       HookAction = "script"
	ActionWebhook      HookAction = "webhook"
	ActionEmail        HookAction = "email"
	ActionNotification HookAction = "notification"
)

// Hook is a lifecycle callback bound to a doctype and event type.
type Hook struct {
	ID              int64             `json:"id,omitempty"`
	Name            string            `json:"name,omitempty"`
	Doctype         string            `json:"doctype"`
	Type            HookType          `json:"hook_type"`
	Action          HookAction        `json:"action_type"`
	Order           int               `json:"order,omitempty"`
	IsActive        bool              `json:"is_active"`
	Condition       string            `json:"condition,omitempty"`
	Script          string            `json:"script,omitempty"`
	WebhookURL      string            `json:"webhook_url,omitempty"`
	WebhookHeaders  map[string]string `json:"webhook_headers,omitempty"`
	EmailSubject    string            `json:"email_subject,omitempty"`
	EmailTemplate   string            `json:"email_template,omitempty"`
	EmailRecipients []string          `json:"email_recipients,omitempty"`
	Message         string            `json:"message,omitempty"`
}

// UnmarshalJSON applies definition defaults: hooks are active unless they
// say otherwise.
func (h *Hook) UnmarshalJSON(data []byte) error {
	type raw Hook
	r := raw{IsActive: true}
	if err := decodeDefinition(data, &r); err != nil {
		return err
	}
	*h = Hook(r)
	return nil
}

// State is a node of a workflow graph.
type State struct {
	Name      string `json:"name"`
	IsInitial bool   `json:"is_initial,omitempty"`
	IsFinal   bool   `json:"is_final,omitempty"`
	IsSuccess bool   `json:"is_success,omitempty"`
}

// WorkflowAction names a transition side effect.
type WorkflowAction string

const (
	ActionSetField  WorkflowAction = "set_field"
	ActionNotify    WorkflowAction = "notify"
	ActionSendEmail WorkflowAction = "send_email"
	ActionCallHook  WorkflowAction = "webhook"
)

// Action is a side effect run after a successful transition.
type Action struct {
	Type       WorkflowAction `json:"type"`
	Field      string         `json:"field,omitempty"`
	Value      any            `json:"value,omitempty"`
	Message    string         `json:"message,omitempty"`
	Recipients []string       `json:"recipients,omitempty"`
	URL        string         `json:"url,omitempty"`
}

// Transition is an edge between two states of the same workflow.
type Transition struct {
	Label          string   `json:"label"`
	From           string   `json:"from_state"`
	To             string   `json:"to_state"`
	AllowedRoles   []string `json:"allowed_roles,omitempty"`
	Condition      string   `json:"condition,omitempty"`
	RequireComment bool     `json:"require_comment,omitempty"`
	Actions        []Action `json:"actions,omitempty"`
}

// Workflow is a state machine bound to one doctype.
type Workflow struct {
	ID          int64        `json:"id,omitempty"`
	Name        string       `json:"name"`
	Doctype     string       `json:"doctype"`
	IsActive    bool         `json:"is_active"`
	States      []State      `json:"states"`
	Transitions []Transition `json:"transitions"`
}

// UnmarshalJSON applies definition defaults: workflows are active unless
// they say otherwise.
func (w *Workflow) UnmarshalJSON(data []byte) error {
	type raw Workflow
	r := raw{IsActive: true}
	if err := decodeDefinition(data, &r); err != nil {
		return err
	}
	*w = Workflow(r)
	return nil
}

// State returns the named state.
func (w *Workflow) State(name string) (State, bool) {
	for _, s := range w.States {
		if s.Name == name {
			return s, true
		}
	}
	return State{}, false
}

// InitialState returns the first state flagged initial.
func (w *Workflow) InitialState() (State, bool) {
	for _, s := range w.States {
		if s.IsInitial {
			return s, true
		}
	}
	return State{}, false
}

// DocumentWorkflowState tracks where a document is in its workflow.
type DocumentWorkflowState struct {
	DocumentID   string    `json:"document_id"`
	Workflow     string    `json:"workflow"`
	CurrentState string    `json:"current_state"`
	ChangedBy    string    `json:"changed_by"`
	ChangedAt    time.Time `json:"changed_at"`
}
