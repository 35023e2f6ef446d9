// Package hook runs the lifecycle callbacks bound to a doctype.
//
// A Dispatcher loads the active hooks for an event in ascending order,
// evaluates each hook's condition and runs its action: a script that may
// rewrite document data, a webhook, an email or an in-app notification.
//
// Failure policy depends on the hook type. A failing before_* hook stops
// dispatch and the caller aborts the write; after_* and on_change
// failures are collected in the results and never abort anything.
//
// DispatchDeferred holds back the webhook, email and notification
// actions of after-hooks so the caller can Run them once its write has
// committed.
package hook
