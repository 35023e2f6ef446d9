// Package harness runs document engine scenarios.
//
// A scenario loads definition files into a fresh database, executes an
// ordered list of engine operations as named actors and checks the
// resulting trace and final document state.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: invoice_approval
//	description: "A manager approves a submitted invoice"
//	definitions:
//	  - invoice.yaml            # relative to the scenario file
//	actors:
//	  mgr: {roles: [manager]}
//	directory:
//	  alice: alice@example.com
//	steps:
//	  - op: create
//	    as: inv
//	    actor: alice
//	    doctype: Invoice
//	    data: {qty: 2}
//	  - op: update
//	    doc: inv
//	    data: {qty: "many"}
//	    expect_error: VALIDATION_ERROR
//	  - op: transition
//	    doc: inv
//	    actor: mgr
//	    label: Approve
//	assertions:
//	  - type: final_state
//	    doc: inv
//	    expect: {doc_status: draft, workflow_state: Approved, data: {qty: 2}}
//	  - type: emails
//	    count: 1
//
// Steps are create, update, submit, cancel, amend, delete, transition and
// restore. A step with expect_error must fail with that error kind; any
// other step must succeed. Steps without an actor run as the system actor.
//
// # Assertion Types
//
//   - trace_contains: a step with the given op (and doc alias) ran
//   - trace_order: ops appear in the given order
//   - trace_count: an op ran exactly count times
//   - final_state: subset match on the document (name, doc_status,
//     version_number, is_deleted, workflow_state, data)
//   - emails, notifications: exactly count messages were delivered
//
// # Deterministic Testing
//
// Every run uses a fresh temporary database, a testutil.FixedClock and
// testutil.SequenceIDs, so traces are identical across runs and can be
// compared against golden files with AssertGolden.
package harness
