package version

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/notify"
	"github.com/roach88/doctype/internal/store"
	"github.com/roach88/doctype/internal/value"
)

// Engine creates and serves document versions.
//
// Engine is stateless apart from its collaborators and safe for
// concurrent use. Every method takes the store to work against, so callers
// inside a transaction pass the transaction store.
type Engine struct {
	audit  notify.AuditSink
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithAuditSink sets where integrity and retention events go.
func WithAuditSink(a notify.AuditSink) Option {
	return func(e *Engine) { e.audit = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine. Without options events are written to
// slog.Default().
func New(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.audit == nil {
		e.audit = notify.SlogAuditSink{Logger: e.logger}
	}
	return e
}

// Snapshot records the current data of doc as its next version and sets
// doc.VersionNumber. The previous version is verified first; history that
// fails verification cannot be extended.
func (e *Engine) Snapshot(ctx context.Context, st *store.Store, doc *model.Document, actor model.Actor, comment string, at time.Time) (*model.Version, error) {
	latest, err := st.LatestVersionNumber(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	previous := value.Object{}
	if latest > 0 {
		prev, err := e.Get(ctx, st, actor, doc.ID, latest)
		if err != nil {
			return nil, err
		}
		previous = prev.Snapshot
	}

	snapshot := doc.Data.Clone()
	if snapshot == nil {
		snapshot = value.Object{}
	}
	number := latest + 1
	hash, err := value.VersionHash(doc.ID, number, snapshot)
	if err != nil {
		return nil, fmt.Errorf("hash version %d of %s: %w", number, doc.ID, err)
	}
	changes := Diff(previous, snapshot)

	snapText, err := value.MarshalCanonical(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	changesText, err := value.MarshalCanonical(encodeChanges(changes))
	if err != nil {
		return nil, fmt.Errorf("encode changes: %w", err)
	}

	v := &model.Version{
		DocumentID:    doc.ID,
		Number:        number,
		Snapshot:      snapshot,
		Changes:       changes,
		ChangedBy:     actor.ID,
		ChangedAt:     at,
		Comment:       comment,
		IntegrityHash: hash,
	}
	err = st.InsertVersion(ctx, store.VersionRecord{
		DocumentID:    v.DocumentID,
		Number:        v.Number,
		Snapshot:      string(snapText),
		Changes:       string(changesText),
		ChangedBy:     v.ChangedBy,
		ChangedAt:     v.ChangedAt,
		Comment:       v.Comment,
		IntegrityHash: v.IntegrityHash,
	})
	if err != nil {
		return nil, err
	}
	doc.VersionNumber = number
	return v, nil
}

// Get returns one verified version.
func (e *Engine) Get(ctx context.Context, st *store.Store, actor model.Actor, documentID string, number int64) (*model.Version, error) {
	rec, err := st.GetVersion(ctx, documentID, number)
	if err != nil {
		return nil, err
	}
	v, err := decode(rec)
	if err != nil {
		return nil, e.integrityFailure(ctx, actor, rec, err)
	}
	return v, nil
}

// List returns every version of a document, newest first. One failing
// version fails the whole call.
func (e *Engine) List(ctx context.Context, st *store.Store, actor model.Actor, documentID string) ([]*model.Version, error) {
	recs, err := st.ListVersions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Version, 0, len(recs))
	for i := range recs {
		v, err := decode(&recs[i])
		if err != nil {
			return nil, e.integrityFailure(ctx, actor, &recs[i], err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Compare returns the changes from version v1 to version v2.
func (e *Engine) Compare(ctx context.Context, st *store.Store, actor model.Actor, documentID string, v1, v2 int64) (model.Changes, error) {
	a, b, err := e.pair(ctx, st, actor, documentID, v1, v2)
	if err != nil {
		return model.Changes{}, err
	}
	return Diff(a.Snapshot, b.Snapshot), nil
}

// DiffText renders a unified diff between two versions as indented JSON
// with sorted keys. With a field name only that field is compared; a
// missing field renders as null. Identical inputs give an empty string.
func (e *Engine) DiffText(ctx context.Context, st *store.Store, actor model.Actor, documentID string, v1, v2 int64, field string) (string, error) {
	a, b, err := e.pair(ctx, st, actor, documentID, v1, v2)
	if err != nil {
		return "", err
	}

	var left, right value.Value = a.Snapshot, b.Snapshot
	fromName, toName := fmt.Sprintf("Version %d", v1), fmt.Sprintf("Version %d", v2)
	if field != "" {
		left, right = orNull(a.Snapshot[field]), orNull(b.Snapshot[field])
		fromName, toName = fmt.Sprintf("v%d/%s", v1, field), fmt.Sprintf("v%d/%s", v2, field)
	}

	leftText, err := value.MarshalIndent(left)
	if err != nil {
		return "", fmt.Errorf("render version %d: %w", v1, err)
	}
	rightText, err := value.MarshalIndent(right)
	if err != nil {
		return "", fmt.Errorf("render version %d: %w", v2, err)
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(leftText),
		B:        difflib.SplitLines(rightText),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	})
}

// Entry is one line of a document's history.
type Entry struct {
	Number    int64     `json:"version_number"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
	Comment   string    `json:"comment,omitempty"`
	Summary   string    `json:"summary"`
}

// History summarizes every version of a document, newest first.
func (e *Engine) History(ctx context.Context, st *store.Store, actor model.Actor, documentID string) ([]Entry, error) {
	versions, err := e.List(ctx, st, actor, documentID)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(versions))
	for i, v := range versions {
		out[i] = Entry{
			Number:    v.Number,
			ChangedBy: v.ChangedBy,
			ChangedAt: v.ChangedAt,
			Comment:   v.Comment,
			Summary:   Summarize(v.Changes),
		}
	}
	return out, nil
}

// Check is the verification status of one version.
type Check struct {
	Number int64  `json:"version_number"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Verify checks every version of a document, newest first, and reports
// each one instead of stopping at the first failure. Failures are logged
// and audited like failed reads.
func (e *Engine) Verify(ctx context.Context, st *store.Store, actor model.Actor, documentID string) ([]Check, error) {
	recs, err := st.ListVersions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	out := make([]Check, len(recs))
	for i := range recs {
		out[i] = Check{Number: recs[i].Number, Valid: true}
		if _, err := decode(&recs[i]); err != nil {
			_ = e.integrityFailure(ctx, actor, &recs[i], err)
			out[i].Valid = false
			out[i].Reason = err.Error()
		}
	}
	return out, nil
}

// Prune deletes the oldest versions so that at most keep remain. The
// latest version is always kept. Returns how many were deleted.
func (e *Engine) Prune(ctx context.Context, st *store.Store, actor model.Actor, documentID string, keep int) (int64, error) {
	if keep < 1 {
		return 0, errs.New(errs.KindValidation, "keep must be at least 1, got %d", keep).
			WithDocument("", documentID)
	}
	latest, err := st.LatestVersionNumber(ctx, documentID)
	if err != nil {
		return 0, err
	}
	keepFrom := latest - int64(keep) + 1
	if keepFrom <= 1 {
		return 0, nil
	}
	n, err := st.DeleteVersionsBelow(ctx, documentID, keepFrom)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.InfoContext(ctx, "pruned versions", "document", documentID, "deleted", n, "kept_from", keepFrom)
		e.audit.LogSecurityEvent(ctx, notify.SecurityEvent{
			Type:        notify.EventDataRetention,
			Severity:    notify.SeverityInfo,
			Actor:       actor.ID,
			Description: fmt.Sprintf("pruned %d version(s) of document %s", n, documentID),
			Metadata: map[string]string{
				"document_id": documentID,
				"deleted":     strconv.FormatInt(n, 10),
				"kept_from":   strconv.FormatInt(keepFrom, 10),
			},
		})
	}
	return n, nil
}

func (e *Engine) pair(ctx context.Context, st *store.Store, actor model.Actor, documentID string, v1, v2 int64) (*model.Version, *model.Version, error) {
	a, err := e.Get(ctx, st, actor, documentID, v1)
	if err != nil {
		return nil, nil, err
	}
	b, err := e.Get(ctx, st, actor, documentID, v2)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func (e *Engine) integrityFailure(ctx context.Context, actor model.Actor, rec *store.VersionRecord, cause error) error {
	e.logger.ErrorContext(ctx, "version integrity check failed",
		"document", rec.DocumentID,
		"version", rec.Number,
		"error", cause)
	e.audit.LogSecurityEvent(ctx, notify.SecurityEvent{
		Type:        notify.EventIntegrityFail,
		Severity:    notify.SeverityCritical,
		Actor:       actor.ID,
		Description: fmt.Sprintf("version %d of document %s failed verification", rec.Number, rec.DocumentID),
		Metadata: map[string]string{
			"document_id":    rec.DocumentID,
			"version_number": strconv.FormatInt(rec.Number, 10),
			"reason":         cause.Error(),
		},
	})
	return errs.Wrap(errs.KindIntegrity, cause, "version %d failed integrity verification", rec.Number).
		WithDocument("", rec.DocumentID)
}

// decode parses a stored row and checks its hash.
func decode(rec *store.VersionRecord) (*model.Version, error) {
	snapshot, err := value.ParseObject([]byte(rec.Snapshot))
	if err != nil {
		return nil, fmt.Errorf("unparsable snapshot: %w", err)
	}
	want, err := value.VersionHash(rec.DocumentID, rec.Number, snapshot)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(want, rec.IntegrityHash) {
		return nil, errIntegrityMismatch
	}
	changesObj, err := value.ParseObject([]byte(rec.Changes))
	if err != nil {
		return nil, fmt.Errorf("unparsable changes: %w", err)
	}
	changes, err := decodeChanges(changesObj)
	if err != nil {
		return nil, err
	}
	return &model.Version{
		DocumentID:    rec.DocumentID,
		Number:        rec.Number,
		Snapshot:      snapshot,
		Changes:       changes,
		ChangedBy:     rec.ChangedBy,
		ChangedAt:     rec.ChangedAt,
		Comment:       rec.Comment,
		IntegrityHash: rec.IntegrityHash,
	}, nil
}

var errIntegrityMismatch = errors.New("integrity hash mismatch")
