// Package workflow implements document state machines: authoring checks,
// initialization, transition discovery, eligibility and execution.
//
// The package is pure. It reads and mutates the values it is handed and
// returns what should be persisted and delivered; the engine owns the
// transaction, the version snapshot and delivery.
package workflow

import (
	"fmt"
	"strings"

	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/expr"
	"github.com/roach88/doctype/internal/model"
)

// Workflow error codes (W300-W399)
const (
	ErrWorkflowName      = "W301" // workflow name or doctype missing
	ErrNoStates          = "W302" // no states declared
	ErrInitialState      = "W303" // zero or several initial states
	ErrDuplicateState    = "W304" // duplicate or empty state name
	ErrUnknownState      = "W305" // transition references an undeclared state
	ErrDuplicatePair     = "W306" // two transitions share (from, to)
	ErrDuplicateLabel    = "W307" // two transitions share a label from one state
	ErrConditionInvalid  = "W308" // condition does not parse
	ErrFinalOutgoing     = "W309" // final state has outgoing transitions
	ErrTransitionLabel   = "W310" // transition without label
	ErrActionIncomplete  = "W311" // action missing a required field
	ErrActionUnsupported = "W312" // action type not recognized
)

// Options tunes authoring checks.
type Options struct {
	// StrictFinalStates turns outgoing transitions from final states into
	// errors instead of warnings.
	StrictFinalStates bool
}

// ValidateWorkflow checks a workflow definition. Errors are returned as one
// errs.KindSchema error; warnings never fail the check.
func ValidateWorkflow(wf *model.Workflow, opts Options) (warnings []errs.Issue, err error) {
	var issues []errs.Issue
	add := func(field, code, format string, args ...any) {
		issues = append(issues, errs.Issue{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}
	warn := func(field, code, format string, args ...any) {
		warnings = append(warnings, errs.Issue{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if strings.TrimSpace(wf.Name) == "" {
		add("name", ErrWorkflowName, "workflow name is required")
	}
	if strings.TrimSpace(wf.Doctype) == "" {
		add("doctype", ErrWorkflowName, "workflow doctype is required")
	}
	if len(wf.States) == 0 {
		add("states", ErrNoStates, "at least one state is required")
	}

	states := make(map[string]model.State)
	initial := 0
	for i, s := range wf.States {
		switch {
		case s.Name == "":
			add(fmt.Sprintf("states[%d].name", i), ErrDuplicateState, "state name is required")
		case states[s.Name].Name != "":
			add("states."+s.Name, ErrDuplicateState, "duplicate state %q", s.Name)
		}
		states[s.Name] = s
		if s.IsInitial {
			initial++
		}
	}
	if len(wf.States) > 0 && initial != 1 {
		add("states", ErrInitialState, "exactly one initial state is required, found %d", initial)
	}

	pairs := make(map[[2]string]bool)
	labels := make(map[[2]string]bool)
	for i, t := range wf.Transitions {
		path := fmt.Sprintf("transitions[%d]", i)
		if t.Label == "" {
			add(path+".label", ErrTransitionLabel, "transition label is required")
		}
		from, fromOK := states[t.From]
		if !fromOK {
			add(path+".from_state", ErrUnknownState, "unknown from_state %q", t.From)
		}
		if _, ok := states[t.To]; !ok {
			add(path+".to_state", ErrUnknownState, "unknown to_state %q", t.To)
		}

		pair := [2]string{t.From, t.To}
		if pairs[pair] {
			add(path, ErrDuplicatePair, "duplicate transition from %q to %q", t.From, t.To)
		}
		pairs[pair] = true
		label := [2]string{t.From, t.Label}
		if t.Label != "" && labels[label] {
			add(path+".label", ErrDuplicateLabel, "duplicate label %q from state %q", t.Label, t.From)
		}
		labels[label] = true

		if t.Condition != "" {
			if _, err := expr.Compile(t.Condition); err != nil {
				add(path+".condition", ErrConditionInvalid, "condition does not parse: %v", err)
			}
		}
		if fromOK && from.IsFinal {
			if opts.StrictFinalStates {
				add(path, ErrFinalOutgoing, "final state %q has an outgoing transition", t.From)
			} else {
				warn(path, ErrFinalOutgoing, "final state %q has an outgoing transition", t.From)
			}
		}

		for j, a := range t.Actions {
			apath := fmt.Sprintf("%s.actions[%d]", path, j)
			switch a.Type {
			case model.ActionSetField:
				if a.Field == "" {
					add(apath+".field", ErrActionIncomplete, "set_field action requires a field")
				}
			case model.ActionNotify, model.ActionSendEmail, model.ActionCallHook:
			default:
				warn(apath+".type", ErrActionUnsupported, "unknown action type %q is ignored", a.Type)
			}
		}
	}

	if len(issues) > 0 {
		return warnings, errs.NewSchema(wf.Name, issues)
	}
	return warnings, nil
}

// Initialize returns the initial state of wf.
func Initialize(wf *model.Workflow) (string, error) {
	var found []string
	for _, s := range wf.States {
		if s.IsInitial {
			found = append(found, s.Name)
		}
	}
	if len(found) != 1 {
		return "", errs.New(errs.KindSchema, "workflow %q must have exactly one initial state, found %d", wf.Name, len(found))
	}
	return found[0], nil
}

// IsFinal reports whether state is a final state of wf.
func IsFinal(wf *model.Workflow, state string) bool {
	s, ok := wf.State(state)
	return ok && s.IsFinal
}

// IsSuccess reports whether state is a final success state of wf.
func IsSuccess(wf *model.Workflow, state string) bool {
	s, ok := wf.State(state)
	return ok && s.IsFinal && s.IsSuccess
}
