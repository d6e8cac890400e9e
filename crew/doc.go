// Package crew implements the runtime side of a crew workflow: agents
// bound to a reasoning collaborator, tasks with context dependencies, and
// the crew process loop that runs the task list sequentially or under a
// manager agent.
package crew
