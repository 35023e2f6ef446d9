package harness

import (
	"github.com/roach88/doctype/internal/notify"
	"github.com/roach88/doctype/internal/value"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Op      string `json:"op"`
	Doc     string `json:"doc,omitempty"`
	Name    string `json:"name,omitempty"`
	Status  string `json:"doc_status,omitempty"`
	Version int64  `json:"version,omitempty"`
	State   string `json:"state,omitempty"`
	Error   string `json:"error,omitempty"`
}

// value renders the event for canonical serialization. Empty fields are
// left out.
func (e TraceEvent) value() value.Object {
	obj := value.Object{
		"seq": value.Int(e.Seq),
		"op":  value.String(e.Op),
	}
	put := func(key, s string) {
		if s != "" {
			obj[key] = value.String(s)
		}
	}
	put("doc", e.Doc)
	put("name", e.Name)
	put("doc_status", e.Status)
	put("state", e.State)
	put("error", e.Error)
	if e.Version != 0 {
		obj["version"] = value.Int(e.Version)
	}
	return obj
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step behaved as expected and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace lists the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Emails and Notifications are the messages delivered during the run.
	Emails        []notify.Email        `json:"emails,omitempty"`
	Notifications []notify.Notification `json:"notifications,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addTrace appends ev with the next sequence number.
func (r *Result) addTrace(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
