package engine

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/doctype/internal/access"
	"github.com/roach88/doctype/internal/config"
	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/notify"
	"github.com/roach88/doctype/internal/queryir"
	"github.com/roach88/doctype/internal/schema"
	"github.com/roach88/doctype/internal/store"
	"github.com/roach88/doctype/internal/testutil"
	"github.com/roach88/doctype/internal/value"
)

const baseDefinitions = `
doctypes:
  - name: Customer
    naming: {strategy: field, field: customer_name}
    fields:
      - {name: customer_name, type: string, required: true}
      - {name: email, type: email, unique: true}
  - name: Invoice
    submittable: true
    naming: {strategy: sequence, prefix: INV-}
    fields:
      - {name: customer, type: link, link_target: Customer}
      - {name: qty, type: integer, default: 1}
      - {name: price, type: decimal}
      - {name: status, type: string}
      - {name: assigned_to, type: string}
  - name: Task
    tree: true
    naming: {strategy: prompt}
    fields:
      - {name: title, type: string, required: true}
`

var (
	alice = model.Actor{ID: "alice", Roles: []string{"editor"}}
	admin = model.SystemActor
)

type fixture struct {
	eng   *Engine
	st    *store.Store
	rec   *notify.Recorder
	clock *testutil.FixedClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{st: st, rec: notify.NewRecorder(), clock: testutil.NewFixedClock(testutil.Epoch, 0)}
	base := []Option{
		WithClock(f.clock),
		WithIDs(testutil.NewSequenceIDs()),
		WithMailer(f.rec),
		WithNotifier(f.rec),
		WithAuditSink(f.rec),
	}
	f.eng = New(st, append(base, opts...)...)
	f.define(t, baseDefinitions)
	return f
}

func (f *fixture) define(t *testing.T, src string) *DefineResult {
	t.Helper()
	defs, err := schema.Parse([]byte(src), schema.FormatYAML, "test.yaml")
	require.NoError(t, err)
	res, err := f.eng.Define(context.Background(), admin, defs)
	require.NoError(t, err)
	return res
}

func (f *fixture) create(t *testing.T, doctype string, data value.Object, opts ...CreateOptions) *model.Document {
	t.Helper()
	var o CreateOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	doc, err := f.eng.Create(context.Background(), alice, doctype, data, o)
	require.NoError(t, err)
	return doc
}

func issueCodes(t *testing.T, err error) []string {
	t.Helper()
	e, ok := errs.As(err)
	require.True(t, ok, "want *errs.Error, got %v", err)
	codes := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		codes[i] = is.Code
	}
	return codes
}

func TestDefine_RedefinitionKeepsVersion(t *testing.T) {
	f := newFixture(t)
	res := f.define(t, baseDefinitions)
	require.Len(t, res.Doctypes, 3)
	for _, d := range res.Doctypes {
		assert.False(t, d.Changed, d.Name)
		assert.Equal(t, int64(1), d.Version, d.Name)
	}

	res = f.define(t, `
doctypes:
  - name: Task
    tree: true
    naming: {strategy: prompt}
    fields:
      - {name: title, type: string, required: true}
      - {name: done, type: boolean}
`)
	assert.Equal(t, []DefinedDoctype{{Name: "Task", Version: 2, Changed: true}}, res.Doctypes)

	dt, err := f.eng.Doctype(context.Background(), "Task")
	require.NoError(t, err)
	assert.Len(t, dt.Fields, 2)
}

func TestDefine_UnknownReferencesRejectWholeSet(t *testing.T) {
	f := newFixture(t)
	defs, err := schema.Parse([]byte(`
doctypes:
  - name: Order
    fields:
      - {name: supplier, type: link, link_target: Supplier}
`), schema.FormatYAML, "order.yaml")
	require.NoError(t, err)

	_, err = f.eng.Define(context.Background(), admin, defs)
	require.Error(t, err)
	assert.True(t, errs.IsSchema(err))
	assert.Equal(t, []string{ErrUnknownDoctype}, issueCodes(t, err))

	_, err = f.eng.Doctype(context.Background(), "Order")
	assert.True(t, errs.IsNotFound(err))
}

func TestDefine_RequiresSuperuser(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.Define(context.Background(), alice, &schema.Definitions{})
	assert.True(t, errs.Is(err, errs.KindPermission))
}

func TestCreate_ValidatesAndKeepsUnknownKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.Create(ctx, alice, "Customer", value.Object{"email": value.String("a@example.com")}, CreateOptions{})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
	assert.Equal(t, []string{schema.ErrRequired}, issueCodes(t, err))

	doc := f.create(t, "Customer", value.Object{
		"customer_name": value.String("Acme"),
		"nickname":      value.String("acme"),
	})
	assert.Equal(t, "Acme", doc.Name)
	assert.Equal(t, value.String("acme"), doc.Data["nickname"])
	assert.Equal(t, int64(1), doc.VersionNumber)
	assert.Equal(t, model.Draft, doc.DocStatus)

	got, err := f.eng.GetByName(ctx, alice, "Customer", "Acme")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
}

func TestCreate_SequenceAndPromptNaming(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, "Invoice", nil)
	second := f.create(t, "Invoice", value.Object{"qty": value.Int(3)})
	assert.Equal(t, "INV-0001", first.Name)
	assert.Equal(t, "INV-0002", second.Name)
	assert.Equal(t, value.Int(1), first.Data["qty"])

	_, err := f.eng.Create(context.Background(), alice, "Task", value.Object{"title": value.String("x")}, CreateOptions{})
	require.Error(t, err)
	assert.Equal(t, []string{schema.ErrName}, issueCodes(t, err))

	task := f.create(t, "Task", value.Object{"title": value.String("x")}, CreateOptions{Name: "T-1"})
	assert.Equal(t, "T-1", task.Name)

	_, err = f.eng.Create(context.Background(), alice, "Task", value.Object{"title": value.String("y")}, CreateOptions{Name: "T-1"})
	assert.True(t, errs.Is(err, errs.KindConflict))
}

func TestCreate_RolledBackCreateDoesNotUseNumber(t *testing.T) {
	f := newFixture(t)
	f.define(t, `
hooks:
  - doctype: Invoice
    hook_type: before_insert
    action_type: script
    condition: data.qty > 5
    script: data.bad = 1 / 0
`)
	_, err := f.eng.Create(context.Background(), alice, "Invoice", value.Object{"qty": value.Int(9)}, CreateOptions{})
	require.Error(t, err)
	assert.True(t, errs.IsHookExecution(err))

	doc := f.create(t, "Invoice", value.Object{"qty": value.Int(1)})
	assert.Equal(t, "INV-0001", doc.Name)
}

func TestUpdate_VersionsEveryWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "Invoice", value.Object{"qty": value.Int(1)})

	updated, err := f.eng.Update(ctx, alice, doc.ID, value.Object{"qty": value.Int(2), "note": value.String("rush")}, "bump")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.VersionNumber)

	versions, err := f.eng.Versions(ctx, alice, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, int64(2), versions[0].Number)
	assert.Equal(t, "bump", versions[0].Comment)
	assert.Equal(t, "Created", versions[1].Comment)

	changes, err := f.eng.Compare(ctx, alice, doc.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, value.Object{"note": value.String("rush")}, changes.Added)
	assert.Equal(t, map[string]model.Modification{"qty": {Old: value.Int(1), New: value.Int(2)}}, changes.Modified)
}

func TestUpdate_InvalidDataLeavesDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "Invoice", value.Object{"qty": value.Int(1)})

	_, err := f.eng.Update(ctx, alice, doc.ID, value.Object{"qty": value.String("many")}, "")
	require.Error(t, err)
	assert.Equal(t, []string{schema.ErrInvalidValue}, issueCodes(t, err))

	got, err := f.eng.Get(ctx, alice, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), got.Data["qty"])
	assert.Equal(t, int64(1), got.VersionNumber)
}

func TestRestore_CreatesForwardVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "Invoice", value.Object{"qty": value.Int(1)})
	_, err := f.eng.Update(ctx, alice, doc.ID, value.Object{"qty": value.Int(2)}, "")
	require.NoError(t, err)

	restored, v, err := f.eng.Restore(ctx, alice, doc.ID, 1, "undo")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.Number)
	assert.Equal(t, "Restored to version 1: undo", v.Comment)
	assert.Equal(t, value.Int(1), restored.Data["qty"])

	history, err := f.eng.History(ctx, alice, doc.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "1 field modified", history[0].Summary)
}

func TestRestore_TamperedTargetIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "Invoice", value.Object{"qty": value.Int(1)})
	_, err := f.eng.Update(ctx, alice, doc.ID, value.Object{"qty": value.Int(2)}, "")
	require.NoError(t, err)

	_, err = f.st.DB().ExecContext(ctx,
		`UPDATE document_versions SET data_snapshot = '{"qty":99}' WHERE document_id = ? AND version_number = 1`, doc.ID)
	require.NoError(t, err)

	_, _, err = f.eng.Restore(ctx, alice, doc.ID, 1, "undo")
	require.Error(t, err)
	assert.Equal(t, errs.KindIntegrity, errs.KindOf(err))

	got, err := f.eng.Get(ctx, alice, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), got.Data["qty"])
	assert.Equal(t, int64(2), got.VersionNumber)
}

func TestSubmitCancelAmend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "Invoice", value.Object{"qty": value.Int(4)})

	_, err := f.eng.Cancel(ctx, alice, doc.ID)
	assert.True(t, errs.Is(err, errs.KindInvalidState), "cancel draft: %v", err)

	submitted, err := f.eng.Submit(ctx, alice, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Submitted, submitted.DocStatus)
	assert.Equal(t, "alice", submitted.SubmittedBy)
	assert.Equal(t, int64(2), submitted.VersionNumber)

	_, err = f.eng.Update(ctx, alice, doc.ID, value.Object{"qty": value.Int(5)}, "")
	assert.True(t, errs.Is(err, errs.KindFrozen), "update submitted: %v", err)
	_, err = f.eng.Submit(ctx, alice, doc.ID)
	assert.True(t, errs.Is(err, errs.KindInvalidState), "resubmit: %v", err)
	err = f.eng.SoftDelete(ctx, alice, doc.ID)
	assert.True(t, errs.Is(err, errs.KindInvalidState), "delete submitted: %v", err)

	_, err = f.eng.Amend(ctx, alice, doc.ID)
	assert.True(t, errs.Is(err, errs.KindInvalidState), "amend submitted: %v", err)

	cancelled, err := f.eng.Cancel(ctx, alice, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Cancelled, cancelled.DocStatus)
	_, _, err = f.eng.Restore(ctx, alice, doc.ID, 1, "")
	assert.True(t, errs.Is(err, errs.KindFrozen), "restore cancelled: %v", err)

	amended, err := f.eng.Amend(ctx, alice, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-0001-1", amended.Name)
	assert.Equal(t, doc.ID, amended.AmendedFrom)
	assert.Equal(t, model.Draft, amended.DocStatus)
	assert.Equal(t, value.Int(4), amended.Data["qty"])

	_, err = f.eng.Submit(ctx, alice, amended.ID)
	require.NoError(t, err)
	_, err = f.eng.Cancel(ctx, alice, amended.ID)
	require.NoError(t, err)
	again, err := f.eng.Amend(ctx, alice, amended.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-0001-2", again.Name)
}

func TestSubmit_RequiresSubmittableDoctype(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "Customer", value.Object{"customer_name": value.String("Acme")})
	_, err := f.eng.Submit(context.Background(), alice, doc.ID)
	assert.True(t, errs.Is(err, errs.KindInvalidState))
}

func TestHooks_BeforeSaveFailureLeavesRowUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.define(t, `
hooks:
  - doctype: Invoice
    hook_type: before_save
    action_type: script
    order: 1
    script: data.checked = true
  - doctype: Invoice
    hook_type: before_save
    action_type: script
    order: 2
    condition: data.qty > 5
    script: data.bad = 1 / 0
`)
	doc := f.create(t, "Invoice", value.Object{"qty": value.Int(1)})
	assert.Equal(t, value.Bool(true), doc.Data["checked"])

	_, err := f.eng.Update(ctx, alice, doc.ID, value.Object{"qty": value.Int(10)}, "")
	require.Error(t, err)
	assert.True(t, errs.IsHookExecution(err))
	e, _ := errs.As(err)
	assert.Contains(t, e.Trace, "division by zero")

	got, err := f.eng.Get(ctx, alice, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), got.Data["qty"])
	assert.Equal(t, int64(1), got.VersionNumber)
	assert.True(t, doc.UpdatedAt.Equal(got.UpdatedAt))
}

func TestHooks_AfterSaveFailureCommitsAndIsBounded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.define(t, `
hooks:
  - doctype: Invoice
    hook_type: after_save
    action_type: script
    script: data.bad = 1 / 0
`)
	doc := f.create(t, "Invoice", value.Object{"qty": value.Int(1)})
	failures, err := f.eng.HookFailures(ctx, alice, doc.ID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, model.AfterSave, failures[0].HookType)
	assert.Equal(t, "script", failures[0].ActionType)

	for i := 2; i <= 12; i++ {
		updated, err := f.eng.Update(ctx, alice, doc.ID, value.Object{"qty": value.Int(int64(i))}, "")
		require.NoError(t, err)
		assert.Equal(t, value.Int(int64(i)), updated.Data["qty"])
	}

	got, err := f.eng.Get(ctx, alice, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, value.Int(12), got.Data["qty"])
	assert.NotContains(t, got.Data, "bad")
	assert.Len(t, got.HookFailures, DefaultHookFailureLimit)
	assert.Equal(t, int64(12), got.VersionNumber)
}

func TestHooks_OnChangeOnlyOnDifference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.define(t, `
hooks:
  - doctype: Invoice
    hook_type: on_change
    action_type: notification
    message: "{{.document.name}} changed"
`)
	doc := f.create(t, "Invoice", value.Object{"qty": value.Int(1)})
	assert.Empty(t, f.rec.Notifications())

	_, err := f.eng.Update(ctx, alice, doc.ID, value.Object{"qty": value.Int(1)}, "")
	require.NoError(t, err)
	assert.Empty(t, f.rec.Notifications())

	_, err = f.eng.Update(ctx, alice, doc.ID, value.Object{"qty": value.Int(2)}, "")
	require.NoError(t, err)
	require.Len(t, f.rec.Notifications(), 1)
	assert.Equal(t, "INV-0001 changed", f.rec.Notifications()[0].Message)
}

// gateWebhooks holds every webhook until release is closed.
type gateWebhooks struct {
	started chan struct{}
	release chan struct{}
	status  int
}

func (g *gateWebhooks) Send(ctx context.Context, _ notify.Webhook) (*notify.WebhookResponse, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &notify.WebhookResponse{StatusCode: g.status, Body: "down"}, nil
}

func TestHooks_AfterHookWebhookRunsAfterCommit(t *testing.T) {
	gate := &gateWebhooks{started: make(chan struct{}, 1), release: make(chan struct{}), status: http.StatusBadGateway}
	f := newFixture(t, WithWebhookSender(gate))
	ctx := context.Background()
	acme := f.create(t, "Customer", value.Object{"customer_name": value.String("Acme")})
	f.define(t, `
hooks:
  - doctype: Invoice
    hook_type: after_insert
    action_type: webhook
    webhook_url: http://erp.example.com/hook
`)

	type created struct {
		doc *model.Document
		err error
	}
	done := make(chan created, 1)
	go func() {
		doc, err := f.eng.Create(ctx, alice, "Invoice", value.Object{"qty": value.Int(1)}, CreateOptions{})
		done <- created{doc, err}
	}()
	<-gate.started

	// The invoice is committed and the store is free while the webhook
	// is in flight.
	got, err := f.eng.Get(ctx, alice, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	f.create(t, "Customer", value.Object{"customer_name": value.String("Beta")})
	invoices, err := f.eng.List(ctx, alice, queryir.Select{Doctype: "Invoice"})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Empty(t, invoices[0].HookFailures)

	close(gate.release)
	res := <-done
	require.NoError(t, res.err)
	require.Len(t, res.doc.HookFailures, 1)
	assert.Equal(t, model.AfterInsert, res.doc.HookFailures[0].HookType)
	assert.Equal(t, "webhook", res.doc.HookFailures[0].ActionType)
	assert.Contains(t, res.doc.HookFailures[0].Error, "HTTP 502")

	stored, err := f.eng.Get(ctx, alice, res.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, res.doc.HookFailures, stored.HookFailures)
	assert.Equal(t, int64(1), stored.VersionNumber)
}

func TestLinks_ResolveAndProtectTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acme := f.create(t, "Customer", value.Object{"customer_name": value.String("Acme")})
	beta := f.create(t, "Customer", value.Object{"customer_name": value.String("Beta")})

	_, err := f.eng.Create(ctx, alice, "Invoice", value.Object{"customer": value.String("Nobody")}, CreateOptions{})
	require.Error(t, err)
	assert.Equal(t, []string{schema.ErrLink}, issueCodes(t, err))

	inv := f.create(t, "Invoice", value.Object{"customer": value.String("Acme")})
	links, err := f.eng.Links(ctx, alice, inv.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, acme.ID, links[0].TargetID)

	err = f.eng.SoftDelete(ctx, alice, acme.ID)
	require.Error(t, err)
	assert.True(t, errs.IsReferential(err))

	_, err = f.eng.SetLink(ctx, alice, inv.ID, "customer", "Beta")
	require.NoError(t, err)
	links, err = f.eng.Links(ctx, alice, inv.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, beta.ID, links[0].TargetID)

	require.NoError(t, f.eng.SoftDelete(ctx, alice, acme.ID))

	_, err = f.eng.SetLink(ctx, alice, inv.ID, "customer", "Acme")
	assert.Equal(t, []string{schema.ErrLink}, issueCodes(t, err))

	_, err = f.eng.SetLink(ctx, alice, inv.ID, "qty", "Acme")
	assert.True(t, errs.IsValidation(err))

	_, err = f.eng.SetLink(ctx, alice, inv.ID, "customer", "")
	require.NoError(t, err)
	links, err = f.eng.Links(ctx, alice, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestSoftDelete_ExcludedFromListButReadable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.define(t, `
hooks:
  - doctype: Customer
    hook_type: after_delete
    action_type: notification
`)
	acme := f.create(t, "Customer", value.Object{"customer_name": value.String("Acme"), "email": value.String("ops@acme.test")})
	f.create(t, "Customer", value.Object{"customer_name": value.String("Beta")})

	require.NoError(t, f.eng.SoftDelete(ctx, alice, acme.ID))
	assert.Len(t, f.rec.Notifications(), 1)

	live, err := f.eng.List(ctx, alice, queryir.Select{Doctype: "Customer"})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "Beta", live[0].Name)

	all, err := f.eng.List(ctx, alice, queryir.Select{Doctype: "Customer", IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := f.eng.Get(ctx, alice, acme.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, "alice", got.DeletedBy)

	err = f.eng.SoftDelete(ctx, alice, acme.ID)
	assert.True(t, errs.Is(err, errs.KindInvalidState))
	_, err = f.eng.Update(ctx, alice, acme.ID, value.Object{"customer_name": value.String("Acme")}, "")
	assert.True(t, errs.Is(err, errs.KindInvalidState))

	// The unique email is free again once its holder is deleted.
	f.create(t, "Customer", value.Object{"customer_name": value.String("Gamma"), "email": value.String("ops@acme.test")})
}

func TestUnique_AmongLiveDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, "Customer", value.Object{"customer_name": value.String("Acme"), "email": value.String("a@acme.test")})

	_, err := f.eng.Create(ctx, alice, "Customer",
		value.Object{"customer_name": value.String("Acme 2"), "email": value.String("a@acme.test")}, CreateOptions{})
	require.Error(t, err)
	assert.Equal(t, []string{schema.ErrUnique}, issueCodes(t, err))

	// Saving the holder itself is not a clash.
	_, err = f.eng.Update(ctx, alice, first.ID,
		value.Object{"customer_name": value.String("Acme"), "email": value.String("a@acme.test"), "vip": value.Bool(true)}, "")
	require.NoError(t, err)
}

func TestTree_ParentsAndChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.create(t, "Task", value.Object{"title": value.String("root")}, CreateOptions{Name: "root"})
	leaf := f.create(t, "Task", value.Object{"title": value.String("leaf")}, CreateOptions{Name: "leaf", ParentID: root.ID})
	assert.Equal(t, root.ID, leaf.ParentID)

	children, err := f.eng.Children(ctx, alice, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, leaf.ID, children[0].ID)

	acme := f.create(t, "Customer", value.Object{"customer_name": value.String("Acme")})
	_, err = f.eng.Create(ctx, alice, "Task", value.Object{"title": value.String("x")}, CreateOptions{Name: "x", ParentID: acme.ID})
	assert.Equal(t, []string{schema.ErrStructure}, issueCodes(t, err))

	_, err = f.eng.Create(ctx, alice, "Customer", value.Object{"customer_name": value.String("Sub")}, CreateOptions{ParentID: acme.ID})
	assert.Equal(t, []string{schema.ErrStructure}, issueCodes(t, err))

	err = f.eng.SoftDelete(ctx, alice, root.ID)
	assert.True(t, errs.IsReferential(err))
}

func TestSingleDoctype_OneLiveDocument(t *testing.T) {
	f := newFixture(t)
	f.define(t, `
doctypes:
  - name: Settings
    single: true
    fields:
      - {name: currency, type: string}
`)
	first := f.create(t, "Settings", value.Object{"currency": value.String("EUR")})
	_, err := f.eng.Create(context.Background(), alice, "Settings", value.Object{}, CreateOptions{})
	assert.True(t, errs.Is(err, errs.KindConflict))

	require.NoError(t, f.eng.SoftDelete(context.Background(), alice, first.ID))
	f.create(t, "Settings", value.Object{"currency": value.String("USD")})
}

func TestDisableDoctype_StopsWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "Customer", value.Object{"customer_name": value.String("Acme")})

	require.NoError(t, f.eng.DisableDoctype(ctx, admin, "Customer"))
	_, err := f.eng.Create(ctx, alice, "Customer", value.Object{"customer_name": value.String("Beta")}, CreateOptions{})
	assert.True(t, errs.Is(err, errs.KindInvalidState))

	_, err = f.eng.Get(ctx, alice, doc.ID)
	require.NoError(t, err)

	f.define(t, baseDefinitions)
	f.create(t, "Customer", value.Object{"customer_name": value.String("Beta")})
}

func TestPermissions_Denied(t *testing.T) {
	auth := access.RoleAuthorizer{
		Default: access.Rules{access.Write: {"editor"}, access.Delete: {"admin"}},
	}
	f := newFixture(t, WithAuthorizer(auth))
	ctx := context.Background()
	viewer := model.Actor{ID: "vic"}

	_, err := f.eng.Create(ctx, viewer, "Customer", value.Object{"customer_name": value.String("Acme")}, CreateOptions{})
	assert.True(t, errs.Is(err, errs.KindPermission))

	doc := f.create(t, "Customer", value.Object{"customer_name": value.String("Acme")})
	_, err = f.eng.Get(ctx, viewer, doc.ID)
	require.NoError(t, err)

	err = f.eng.SoftDelete(ctx, alice, doc.ID)
	assert.True(t, errs.Is(err, errs.KindPermission))
	require.NoError(t, f.eng.SoftDelete(ctx, admin, doc.ID))
}

func TestIntegrity_TamperedHistoryBlocksReadsAndWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "Invoice", value.Object{"qty": value.Int(1)})

	_, err := f.st.DB().ExecContext(ctx,
		`UPDATE document_versions SET data_snapshot = '{"qty":99}' WHERE document_id = ?`, doc.ID)
	require.NoError(t, err)

	_, err = f.eng.Version(ctx, alice, doc.ID, 1)
	assert.True(t, errs.IsIntegrity(err))

	_, err = f.eng.Update(ctx, alice, doc.ID, value.Object{"qty": value.Int(2)}, "")
	assert.True(t, errs.IsIntegrity(err))

	checks, err := f.eng.Verify(ctx, alice, doc.ID)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.False(t, checks[0].Valid)

	var integrityEvents int
	for _, ev := range f.rec.Events() {
		if ev.Type == notify.EventIntegrityFail {
			integrityEvents++
		}
	}
	assert.GreaterOrEqual(t, integrityEvents, 3)
}

func TestPrune_KeepsLatest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "Invoice", value.Object{"qty": value.Int(1)})
	for i := 2; i <= 5; i++ {
		_, err := f.eng.Update(ctx, alice, doc.ID, value.Object{"qty": value.Int(int64(i))}, "")
		require.NoError(t, err)
	}

	n, err := f.eng.Prune(ctx, alice, doc.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	versions, err := f.eng.Versions(ctx, alice, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, int64(5), versions[0].Number)
	assert.Equal(t, int64(4), versions[1].Number)
}

func TestVersionRetention_PrunesOnWrite(t *testing.T) {
	settings := config.DefaultSettings()
	settings.VersionRetention = 2
	f := newFixture(t, WithSettings(settings))
	ctx := context.Background()
	doc := f.create(t, "Invoice", value.Object{"qty": value.Int(1)})
	for i := 2; i <= 4; i++ {
		_, err := f.eng.Update(ctx, alice, doc.ID, value.Object{"qty": value.Int(int64(i))}, "")
		require.NoError(t, err)
	}

	versions, err := f.eng.Versions(ctx, alice, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, int64(4), versions[0].Number)
}
