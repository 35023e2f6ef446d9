package model

import (
	"slices"
	"time"

	"github.com/roach88/doctype/internal/value"
)

// DocStatus is the submission lifecycle state of a document.
type DocStatus int

const (
	Draft     DocStatus = 0
	Submitted DocStatus = 1
	Cancelled DocStatus = 2
)

func (s DocStatus) String() string {
	switch s {
	case Draft:
		return "draft"
	case Submitted:
		return "submitted"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Document is a schema-conforming record. Data is validated against the
// doctype but unknown keys are kept.
type Document struct {
	ID            string        `json:"id"`
	Doctype       string        `json:"doctype"`
	Name          string        `json:"name"`
	Data          value.Object  `json:"data"`
	DocStatus     DocStatus     `json:"doc_status"`
	ParentID      string        `json:"parent_id,omitempty"`
	AmendedFrom   string        `json:"amended_from,omitempty"`
	VersionNumber int64         `json:"version_number"`
	IsDeleted     bool          `json:"is_deleted"`
	DeletedBy     string        `json:"deleted_by,omitempty"`
	DeletedAt     *time.Time    `json:"deleted_at,omitempty"`
	CreatedBy     string        `json:"created_by"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedBy     string        `json:"updated_by"`
	UpdatedAt     time.Time     `json:"updated_at"`
	SubmittedBy   string        `json:"submitted_by,omitempty"`
	SubmittedAt   *time.Time    `json:"submitted_at,omitempty"`
	HookFailures  []HookFailure `json:"hook_failures,omitempty"`
}

// IsFrozen reports whether the document's data may no longer be edited.
func (d *Document) IsFrozen() bool {
	return d.DocStatus != Draft
}

// HookFailure records one after-hook or on_change failure on a document.
type HookFailure struct {
	HookID     int64     `json:"hook_id"`
	HookType   HookType  `json:"hook_type"`
	ActionType string    `json:"action_type"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Modification is the old and new value of a changed field.
type Modification struct {
	Old value.Value `json:"old"`
	New value.Value `json:"new"`
}

// Changes is the structural diff between two consecutive snapshots.
type Changes struct {
	Added    value.Object            `json:"added"`
	Modified map[string]Modification `json:"modified"`
	Removed  value.Object            `json:"removed"`
}

// IsEmpty reports whether nothing changed.
func (c Changes) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Removed) == 0
}

// Version is an immutable snapshot of a document's data.
type Version struct {
	DocumentID    string       `json:"document_id"`
	Number        int64        `json:"version_number"`
	Snapshot      value.Object `json:"data_snapshot"`
	Changes       Changes      `json:"changes"`
	ChangedBy     string       `json:"changed_by"`
	ChangedAt     time.Time    `json:"changed_at"`
	Comment       string       `json:"comment,omitempty"`
	IntegrityHash string       `json:"integrity_hash"`
}

// Link is a directed edge from a source document field to a target.
// Position orders multi-link edges and is 0 for single links.
type Link struct {
	SourceID string    `json:"source_id"`
	Field    string    `json:"field"`
	TargetID string    `json:"target_id"`
	Position int       `json:"position"`
	Created  time.Time `json:"created_at"`
}

// Actor is the identity performing an operation.
type Actor struct {
	ID        string   `json:"id"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	Superuser bool     `json:"superuser,omitempty"`
}

// SystemActor is used for engine-initiated writes.
var SystemActor = Actor{ID: "system", Superuser: true}

// HasRole reports whether the actor holds role.
func (a Actor) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

// HasAnyRole reports whether the actor holds at least one of roles.
// An empty role list is satisfied by everyone.
func (a Actor) HasAnyRole(roles []string) bool {
	if len(roles) == 0 || a.Superuser {
		return true
	}
	for _, r := range roles {
		if a.HasRole(r) {
			return true
		}
	}
	return false
}
