// Package version keeps the immutable history of document data.
//
// Every write produces one Version: a full snapshot of the data, the
// structural diff against the previous snapshot and an integrity hash
// binding the snapshot to its document and number. Versions are verified
// every time they are read; a version whose hash no longer matches is
// never served and is reported to the audit sink.
package version
