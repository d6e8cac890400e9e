// Package execution runs workflows asynchronously and tracks their
// lifecycle records.
//
// A submission returns immediately with a pending record; a worker
// goroutine drives the workflow through PROCESSING to COMPLETED or ERROR.
// Records live in a pluggable Store so callers can poll results across
// process restarts when a persistent store is configured.
package execution
