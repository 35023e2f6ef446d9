// Package store provides SQLite-backed durable storage for doctypes,
// documents and their history.
//
// Tables:
//   - doctypes: Definitions, one row per name, versioned on change
//   - documents: Records with lifecycle columns and canonical JSON data
//   - naming_series: Gapless counters for sequence naming
//   - document_links, document_link_multiple: Link field edges
//   - document_versions: Immutable snapshots with integrity hashes
//   - hooks, workflows, document_workflow_states: Lifecycle configuration
//
// # Critical Patterns
//
// Deterministic Query Results
//   - All list queries end with id COLLATE BINARY ASC as tiebreaker
//
// Canonical Storage
//   - data, data_snapshot and changes hold RFC 8785 canonical JSON
//   - Timestamps are RFC 3339 UTC text
//
// One Transaction Per Write
//   - WithTx runs a unit of work on a single IMMEDIATE transaction
//   - Counters, documents, links and versions commit or roll back together
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - _txlock=immediate: Writers take the lock at BEGIN
//   - One writer connection; reads outside a transaction use a separate
//     read-only pool (_query_only=1) and never wait for the writer
//
// Version rows are returned raw; parsing and integrity verification
// belong to the version package.
package store
