// Package runtime compiles a validated configuration document into the
// live object graph the engine executes: agents bound to their reasoning
// collaborators, tasks wired to agents and context tasks, crews, and the
// flow dependency graph.
//
// Building is side-effect free apart from tool discovery. A document that
// passed validation either builds completely or fails with a build error;
// there are no partially built graphs.
package runtime
