// Package config parses and validates declarative workflow documents.
//
// A document describes either a Crew (agents + tasks + crews, run once) or a
// Flow (flow metadata + flow methods forming a start/listen dependency graph).
// Parsing expands ${NAME} environment placeholders before validation and
// collects every validation problem instead of stopping at the first.
package config
