package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/expr"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/schema"
	"github.com/roach88/doctype/internal/store"
)

// assignName names a new document. A requested name always wins;
// otherwise the doctype's strategy decides. Sequence numbers come from the
// naming series inside tx, so a rolled-back insert does not use one up.
func (e *Engine) assignName(ctx context.Context, tx *store.Store, dt *model.Doctype, doc *model.Document, requested string) error {
	if name := strings.TrimSpace(requested); name != "" {
		doc.Name = name
		return nil
	}

	nameIssue := func(field, msg string) error {
		return errs.NewValidation(dt.Name, []errs.Issue{{Field: field, Message: msg, Code: schema.ErrName}}).
			WithDocument(dt.Name, doc.ID)
	}

	n := dt.Naming
	switch n.Strategy {
	case model.NamingSequence:
		next, err := tx.NextInSeries(ctx, dt.Name, n.Prefix)
		if err != nil {
			return err
		}
		doc.Name = SequenceName(n.Prefix, n.Padding, next)
	case model.NamingField:
		name := strings.TrimSpace(expr.Stringify(doc.Data[n.Field]))
		if name == "" {
			return nameIssue(n.Field, "naming field is empty")
		}
		doc.Name = name
	case model.NamingPrompt:
		return nameIssue("name", "a document name is required")
	default:
		doc.Name = doc.ID
	}
	return nil
}

// SequenceName formats a naming-series value: prefix followed by the
// counter zero-padded to padding digits.
func SequenceName(prefix string, padding int, n int64) string {
	return fmt.Sprintf("%s%0*d", prefix, padding, n)
}
