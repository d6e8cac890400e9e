// Package types defines the error taxonomy shared across crewflow.
package types
