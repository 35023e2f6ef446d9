// Package access decides what an actor may do with a document and
// resolves actor ids to contact addresses.
package access

import (
	"context"

	"github.com/roach88/doctype/internal/model"
)

// Permission is an operation class checked before every engine call.
type Permission string

const (
	Read   Permission = "read"
	Write  Permission = "write"
	Delete Permission = "delete"
	Submit Permission = "submit"
)

// Permissions lists every permission.
var Permissions = []Permission{Read, Write, Delete, Submit}

// Authorizer grants or denies a permission on a document. For creates,
// doc carries the doctype and the proposed data but no id.
type Authorizer interface {
	HasPermission(ctx context.Context, actor model.Actor, doc *model.Document, p Permission) bool
}

// AllowAll grants everything.
type AllowAll struct{}

func (AllowAll) HasPermission(context.Context, model.Actor, *model.Document, Permission) bool {
	return true
}

// Rules maps a permission to the roles that hold it. A permission with no
// roles listed is open to every actor.
type Rules map[Permission][]string

// RoleAuthorizer grants permissions by role. Doctype rules replace the
// default rules for that doctype; superusers bypass all checks.
type RoleAuthorizer struct {
	Default  Rules
	Doctypes map[string]Rules
}

func (a RoleAuthorizer) HasPermission(_ context.Context, actor model.Actor, doc *model.Document, p Permission) bool {
	if actor.Superuser {
		return true
	}
	rules := a.Default
	if doc != nil {
		if r, ok := a.Doctypes[doc.Doctype]; ok {
			rules = r
		}
	}
	return actor.HasAnyRole(rules[p])
}

// Directory resolves actor ids to email addresses.
type Directory interface {
	Email(ctx context.Context, actorID string) (string, bool)
}

// StaticDirectory is a fixed id to email table. Ids that already look like
// addresses resolve to themselves.
type StaticDirectory map[string]string

func (d StaticDirectory) Email(_ context.Context, actorID string) (string, bool) {
	if addr, ok := d[actorID]; ok {
		return addr, true
	}
	if looksLikeEmail(actorID) {
		return actorID, true
	}
	return "", false
}

func looksLikeEmail(s string) bool {
	at := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '@' {
			if at >= 0 {
				return false
			}
			at = i
		}
	}
	return at > 0 && at < len(s)-1
}
