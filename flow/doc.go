// Package flow resolves and executes the start/listen dependency graph of
// a Flow workflow.
//
// The graph is represented explicitly: a set of named methods and a status
// map per run, driven by a single executor loop that repeatedly scans for
// methods whose predecessor set is fully done. There are no callback
// chains, so the dependency contract is testable in isolation from any
// execution side effects.
package flow
