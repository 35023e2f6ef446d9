package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/doctype/internal/access"
	"github.com/roach88/doctype/internal/engine"
	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/notify"
	"github.com/roach88/doctype/internal/schema"
	"github.com/roach88/doctype/internal/store"
	"github.com/roach88/doctype/internal/testutil"
	"github.com/roach88/doctype/internal/value"
)

// Harness is the scenario execution engine. It runs scenarios with a
// deterministic clock and id sequence.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	rec    *notify.Recorder
	actors map[string]ActorSpec
	docs   map[string]string // alias -> document id
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh temporary database. A returned error means
// the scenario could not be executed (unreadable definitions, unknown
// aliases, storage failures); step and assertion failures are reported in
// the result.
//
// Execution flow:
//  1. Create a fresh database and engine
//  2. Load and define every definition file
//  3. Execute steps, checking expect_error
//  4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "doctype-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := notify.NewRecorder()
	eng := engine.New(st,
		engine.WithClock(testutil.NewFixedClock(time.Time{}, 0)),
		engine.WithIDs(testutil.NewSequenceIDs()),
		engine.WithDirectory(access.StaticDirectory(scenario.Directory)),
		engine.WithWebhookSender(offlineWebhooks{}),
		engine.WithMailer(rec),
		engine.WithNotifier(rec),
		engine.WithAuditSink(rec),
		engine.WithLogger(logger),
	)

	h := &Harness{
		store:  st,
		engine: eng,
		rec:    rec,
		actors: scenario.Actors,
		docs:   make(map[string]string),
		logger: logger,
	}

	ctx := context.Background()
	for _, path := range scenario.Definitions {
		defs, err := schema.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load definitions: %w", err)
		}
		if _, err := eng.Define(ctx, model.SystemActor, defs); err != nil {
			return nil, fmt.Errorf("failed to define %s: %w", path, err)
		}
	}

	result := NewResult()
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}
	result.Emails = rec.Emails()
	result.Notifications = rec.Notifications()

	for _, msg := range h.evaluateAssertions(ctx, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeSteps runs every step and checks its expected outcome. Only
// engine errors (*errs.Error) are step outcomes; anything else aborts the
// run.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		ev, err := h.execute(ctx, step)
		kind := errs.KindOf(err)
		if err != nil && kind == "" {
			return fmt.Errorf("steps[%d] %s: %w", i, step.Op, err)
		}
		ev.Op, ev.Doc = step.Op, stepAlias(step)
		ev.Error = string(kind)
		result.addTrace(ev)

		switch {
		case err != nil && step.ExpectError == "":
			result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", i, step.Op, err))
		case err != nil && string(kind) != step.ExpectError:
			result.AddError(fmt.Sprintf("steps[%d] %s: expected %s, got %v", i, step.Op, step.ExpectError, err))
		case err == nil && step.ExpectError != "":
			result.AddError(fmt.Sprintf("steps[%d] %s: expected %s, got success", i, step.Op, step.ExpectError))
		}
		h.logger.Debug("step completed", "step", i, "op", step.Op, "error", kind)
	}
	return nil
}

func stepAlias(step Step) string {
	if step.As != "" {
		return step.As
	}
	return step.Doc
}

func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	actor := h.actor(step.Actor)
	var ev TraceEvent

	if step.Op == OpCreate {
		data, err := value.ObjectFromAny(step.Data)
		if err != nil {
			return ev, fmt.Errorf("data: %w", err)
		}
		var parentID string
		if step.Parent != "" {
			if parentID, err = h.docID(step.Parent); err != nil {
				return ev, err
			}
		}
		doc, err := h.engine.Create(ctx, actor, step.Doctype, data, engine.CreateOptions{
			Name:     step.Name,
			ParentID: parentID,
			Comment:  step.Comment,
		})
		if err != nil {
			return ev, err
		}
		h.remember(step.As, doc)
		return describe(doc), nil
	}

	id, err := h.docID(step.Doc)
	if err != nil {
		return ev, err
	}

	var doc *model.Document
	switch step.Op {
	case OpUpdate:
		data, err := value.ObjectFromAny(step.Data)
		if err != nil {
			return ev, fmt.Errorf("data: %w", err)
		}
		doc, err = h.engine.Update(ctx, actor, id, data, step.Comment)
		if err != nil {
			return ev, err
		}
	case OpSubmit:
		if doc, err = h.engine.Submit(ctx, actor, id); err != nil {
			return ev, err
		}
	case OpCancel:
		if doc, err = h.engine.Cancel(ctx, actor, id); err != nil {
			return ev, err
		}
	case OpAmend:
		if doc, err = h.engine.Amend(ctx, actor, id); err != nil {
			return ev, err
		}
		h.remember(step.As, doc)
	case OpDelete:
		if err := h.engine.SoftDelete(ctx, actor, id); err != nil {
			return ev, err
		}
		if doc, err = h.engine.Get(ctx, model.SystemActor, id); err != nil {
			return ev, err
		}
	case OpTransition:
		res, err := h.engine.Transition(ctx, actor, id, step.Label, step.Comment)
		if err != nil {
			return ev, err
		}
		ev = describe(res.Document)
		ev.State = res.To
		return ev, nil
	case OpRestore:
		if doc, _, err = h.engine.Restore(ctx, actor, id, step.Version, step.Comment); err != nil {
			return ev, err
		}
	default:
		return ev, fmt.Errorf("unknown op %q", step.Op)
	}
	return describe(doc), nil
}

func describe(doc *model.Document) TraceEvent {
	return TraceEvent{
		Name:    doc.Name,
		Status:  doc.DocStatus.String(),
		Version: doc.VersionNumber,
	}
}

func (h *Harness) remember(alias string, doc *model.Document) {
	if alias != "" {
		h.docs[alias] = doc.ID
	}
}

func (h *Harness) docID(alias string) (string, error) {
	id, ok := h.docs[alias]
	if !ok {
		return "", fmt.Errorf("unknown document alias %q", alias)
	}
	return id, nil
}

// actor resolves a step actor name. An empty name is the system actor.
func (h *Harness) actor(name string) model.Actor {
	if name == "" {
		return model.SystemActor
	}
	spec := h.actors[name]
	return model.Actor{ID: name, Email: spec.Email, Roles: spec.Roles, Superuser: spec.Superuser}
}

// offlineWebhooks answers every webhook with 200 so scenarios never touch
// the network.
type offlineWebhooks struct{}

func (offlineWebhooks) Send(context.Context, notify.Webhook) (*notify.WebhookResponse, error) {
	return &notify.WebhookResponse{StatusCode: 200, Body: "ok"}, nil
}
