// Package queryir is the filter representation behind document listing.
//
// A Select names a doctype and an optional predicate tree. Backends
// (querysql for SQLite) compile it; the engine never builds SQL by hand.
//
// FIELDS:
//
// A predicate field is either a document column or a path into the data
// payload:
//
//	name, doc_status, parent_id, amended_from,
//	created_by, updated_by, submitted_by       document columns
//	customer, address.city                     data paths
//	data.name                                  data path, forced
//
// The "data." prefix reaches a data field whose name collides with a
// column. Path segments must be identifiers.
//
// PREDICATES:
//
//	Equals    field = value (null matches missing and null)
//	Contains  list membership for list fields, substring for strings
//	And       conjunction (empty = always true)
//
// There are no OR predicates, ranges or full-text search: listing is
// lookup by exact key or simple containment.
//
// SEALED INTERFACES:
//
// Predicate is sealed with a marker method so backends can switch over
// every predicate type exhaustively.
package queryir
