// Package tool resolves tool references into invocable Tool instances.
//
// Built-in references resolve from a static in-process registry.
// Provider-scoped references are resolved through a Provider's discovery
// capability; each discovered descriptor is adapted into a Tool that calls
// back into the provider. Resolution results are cached per reference for
// the lifetime of one Resolver.
package tool
