// Package engine implements the document engine: the single entry point
// through which doctypes are defined and documents are created, changed,
// submitted, versioned and moved through workflows.
//
// Every write is one unit of work. Validation reads, before-hooks, the
// row write, after-hooks, the version snapshot, naming-series allocation
// and workflow state all run inside one SQLite transaction; a failure
// anywhere before commit leaves no trace. Writes to the same document are
// serialized by a per-document mutex. Writes to different documents only
// contend on the database.
//
// Side effects that must not be rolled back, such as workflow
// notifications, are queued during the unit of work and delivered after
// commit. The webhook, email and notification actions of after-hooks are
// held the same way; their failures are recorded on the document in a
// short follow-up write. Before-hooks run inside the transaction because
// they can abort it.
//
// Identity is explicit: every operation takes the acting model.Actor and
// consults the configured access.Authorizer.
package engine
