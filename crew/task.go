package crew

import (
	"strings"

	"github.com/BaSui01/crewflow/tool"
)

// inputPlaceholder is substituted with the caller-supplied input when a
// task description is rendered at run time.
const inputPlaceholder = "{input}"

// Task is a unit of work assigned to one agent.
type Task struct {
	Name           string
	Description    string
	ExpectedOutput string
	// OutputFile, when set, receives the task result after completion.
	OutputFile string
	// Agent performs this task.
	Agent *Agent
	Tools []tool.Tool
	// Context lists tasks whose outputs must be available before this task
	// runs. Wired by the builder in a second pass, so forward references in
	// the document resolve correctly.
	Context []*Task
}

// RenderDescription substitutes the {input} placeholder with the
// caller-supplied input.
func (t *Task) RenderDescription(input string) string {
	return strings.ReplaceAll(t.Description, inputPlaceholder, input)
}
