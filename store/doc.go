// Package store persists workflow documents in a relational database so
// the same definition can be submitted by name across processes and
// restarts.
package store
