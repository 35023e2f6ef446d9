package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/value"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", event.Seq, event.Op, event.Doc)
			if event.Error != "" {
				fmt.Fprintf(&buf, " -> %s", event.Error)
			}
			buf.WriteString("\n")
		}
	}
	return buf.String()
}

// assertTraceContains checks that a step with the assertion's op ran, on
// the assertion's doc alias when one is given.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Op == a.Op && (a.Doc == "" || event.Doc == a.Doc) {
			return nil
		}
	}
	target := a.Op
	if a.Doc != "" {
		target += " on " + a.Doc
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: target,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that ops appear in the given order. They need
// not be consecutive.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if _, seen := positions[event.Op]; !seen {
			positions[event.Op] = i + 1
		}
	}

	for _, op := range a.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", a.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Ops); i++ {
		prev, curr := a.Ops[i-1], a.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", a.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that op ran exactly Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == a.Op {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState loads the aliased document and compares it to Expect
// with subset semantics. The workflow_state key reads the document's
// current workflow state.
func (h *Harness) assertFinalState(ctx context.Context, a Assertion) error {
	id, err := h.docID(a.Doc)
	if err != nil {
		return err
	}
	doc, err := h.engine.Get(ctx, model.SystemActor, id)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("document %s", a.Doc),
			Actual:   err.Error(),
		}
	}

	expected, err := value.ObjectFromAny(a.Expect)
	if err != nil {
		return fmt.Errorf("final_state expect: %w", err)
	}
	actual := documentView(doc)
	if _, ok := expected["workflow_state"]; ok {
		status, err := h.engine.WorkflowState(ctx, model.SystemActor, id)
		switch {
		case err == nil:
			actual["workflow_state"] = value.String(status.CurrentState)
		case errs.Is(err, errs.KindInvalidState):
			actual["workflow_state"] = value.Null{}
		default:
			return err
		}
	}

	if path, ok := subsetMismatch(actual, expected, ""); ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s.%s = %s", a.Doc, path, render(lookupPath(expected, path))),
			Actual:   fmt.Sprintf("%s.%s = %s", a.Doc, path, render(lookupPath(actual, path))),
		}
	}
	return nil
}

func assertMessageCount(kind string, got, want int) error {
	if got != want {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%d %s", want, kind),
			Actual:   fmt.Sprintf("%d %s", got, kind),
		}
	}
	return nil
}

// documentView is the document as final_state assertions see it.
func documentView(doc *model.Document) value.Object {
	return value.Object{
		"name":           value.String(doc.Name),
		"doctype":        value.String(doc.Doctype),
		"doc_status":     value.String(doc.DocStatus.String()),
		"version_number": value.Int(doc.VersionNumber),
		"is_deleted":     value.Bool(doc.IsDeleted),
		"hook_failures":  value.Int(int64(len(doc.HookFailures))),
		"data":           doc.Data.Clone(),
	}
}

// subsetMismatch returns the dotted path of the first expected key whose
// value differs from actual. Nested objects are compared as subsets.
func subsetMismatch(actual, expected value.Object, prefix string) (string, bool) {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		want := expected[k]
		got, exists := actual[k]
		if wantObj, ok := want.(value.Object); ok {
			if gotObj, ok := got.(value.Object); ok {
				if p, bad := subsetMismatch(gotObj, wantObj, path); bad {
					return p, true
				}
				continue
			}
		}
		if !exists && !value.IsNull(want) {
			return path, true
		}
		if exists && !value.Equal(got, want) {
			return path, true
		}
	}
	return "", false
}

func lookupPath(obj value.Object, path string) value.Value {
	var cur value.Value = obj
	for _, part := range strings.Split(path, ".") {
		o, ok := cur.(value.Object)
		if !ok {
			return nil
		}
		cur = o[part]
	}
	return cur
}

func render(v value.Value) string {
	if v == nil {
		return "(missing)"
	}
	b, err := value.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// evaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func (h *Harness) evaluateAssertions(ctx context.Context, result *Result, assertions []Assertion) []string {
	var failures []string

	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = h.assertFinalState(ctx, assertion)
		case AssertEmails:
			err = assertMessageCount(AssertEmails, len(result.Emails), assertion.Count)
		case AssertNotifications:
			err = assertMessageCount(AssertNotifications, len(result.Notifications), assertion.Count)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}
