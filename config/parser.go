package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/crewflow/types"
)

// placeholderPattern matches ${NAME} environment placeholders in string values.
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// EnvLookup resolves a placeholder name to its value.
type EnvLookup func(name string) (string, bool)

// Parser reads workflow documents, expands environment placeholders, and
// validates the result. A Parser is safe for concurrent use.
type Parser struct {
	lookup    EnvLookup
	validator *Validator
	logger    *zap.Logger
}

// ParserOption customizes a Parser.
type ParserOption func(*Parser)

// WithEnvLookup overrides the environment namespace used for ${NAME}
// placeholder expansion. The default is the process environment.
func WithEnvLookup(lookup EnvLookup) ParserOption {
	return func(p *Parser) { p.lookup = lookup }
}

// WithLogger sets the parser logger.
func WithLogger(logger *zap.Logger) ParserOption {
	return func(p *Parser) { p.logger = logger }
}

// NewParser creates a Parser.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		lookup:    os.LookupEnv,
		validator: NewValidator(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "config_parser"))
	return p
}

// ParseFile reads a document from disk. Format is detected from the file
// extension (.yaml, .yml, .json).
func (p *Parser) ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow document: %w", err)
	}
	format := detectFormatByExt(path)
	if format == "" {
		return nil, fmt.Errorf("unsupported file extension: %s", filepath.Ext(path))
	}
	return p.parse(data, format)
}

// Parse parses raw bytes. Format is sniffed: documents starting with '{'
// are JSON, everything else is YAML.
func (p *Parser) Parse(data []byte) (*Document, error) {
	return p.parse(data, detectFormatBySniff(data))
}

func (p *Parser) parse(data []byte, format string) (*Document, error) {
	var doc Document
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q, use \"yaml\" or \"json\"", format)
	}

	normalize(&doc)

	var problems []error
	problems = append(problems, expandDocument(&doc, p.lookup)...)
	problems = append(problems, p.validator.Validate(&doc)...)
	if len(problems) > 0 {
		p.logger.Warn("workflow document rejected",
			zap.Int("problems", len(problems)),
		)
		return nil, types.NewValidationError(problems)
	}

	p.logger.Debug("workflow document parsed",
		zap.Int("agents", len(doc.Agents)),
		zap.Int("tasks", len(doc.Tasks)),
		zap.Int("crews", len(doc.Crews)),
		zap.Bool("flow", doc.IsFlow()),
	)
	return &doc, nil
}

// normalize fills the defaulted fields so the validator and builder see a
// fully explicit document.
func normalize(doc *Document) {
	for i := range doc.Crews {
		if doc.Crews[i].Process == "" {
			doc.Crews[i].Process = ProcessSequential
		}
	}
	for i := range doc.FlowMethods {
		if doc.FlowMethods[i].Action == "" {
			doc.FlowMethods[i].Action = ActionRunCrew
		}
	}
}

// expandDocument substitutes ${NAME} placeholders in every string field.
// An unresolved placeholder is reported as a problem, never replaced with
// an empty string.
func expandDocument(doc *Document, lookup EnvLookup) []error {
	e := &expander{lookup: lookup}
	for i := range doc.Agents {
		a := &doc.Agents[i]
		e.str("agents["+a.Role+"]", &a.Role, &a.Goal, &a.Backstory, &a.LLM.Provider, &a.LLM.Model)
		e.toolRefs("agent "+a.Role, a.Tools)
	}
	for i := range doc.Tasks {
		t := &doc.Tasks[i]
		e.str("tasks["+t.Name+"]", &t.Name, &t.Description, &t.Agent, &t.ExpectedOutput, &t.OutputFile)
		e.strSlice("task "+t.Name+" context", t.Context)
		e.toolRefs("task "+t.Name, t.Tools)
	}
	for i := range doc.Crews {
		c := &doc.Crews[i]
		e.str("crews["+c.Name+"]", &c.Name, &c.Manager)
		e.strSlice("crew "+c.Name+" agents", c.Agents)
		e.strSlice("crew "+c.Name+" tasks", c.Tasks)
	}
	if doc.Flow != nil {
		e.str("flow", &doc.Flow.Name, &doc.Flow.ClassName)
		e.strSlice("flow crews", doc.Flow.Crews)
	}
	for i := range doc.FlowMethods {
		m := &doc.FlowMethods[i]
		e.str("flow_methods["+m.Name+"]", &m.Name, &m.Crew, &m.Output)
		e.strSlice("flow method "+m.Name+" listen_to", m.ListenTo)
	}
	return e.problems
}

// expander walks string fields and records unresolved placeholders.
type expander struct {
	lookup   EnvLookup
	problems []error
}

func (e *expander) str(where string, fields ...*string) {
	for _, f := range fields {
		*f = e.expand(where, *f)
	}
}

func (e *expander) strSlice(where string, values []string) {
	for i := range values {
		values[i] = e.expand(where, values[i])
	}
}

func (e *expander) toolRefs(where string, refs []ToolReference) {
	for i := range refs {
		r := &refs[i]
		e.str(where+" tools", &r.Name, &r.Provider)
		e.strSlice(where+" tool servers", r.Servers)
		e.strSlice(where+" tool names", r.ToolNames)
		r.Parameters = e.anyMap(where+" tool parameters", r.Parameters)
	}
}

func (e *expander) anyMap(where string, m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = e.anyValue(where, v)
	}
	return m
}

func (e *expander) anyValue(where string, v any) any {
	switch val := v.(type) {
	case string:
		return e.expand(where, val)
	case map[string]any:
		return e.anyMap(where, val)
	case []any:
		for i := range val {
			val[i] = e.anyValue(where, val[i])
		}
		return val
	default:
		return v
	}
}

func (e *expander) expand(where, s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := e.lookup(name)
		if !ok {
			e.problems = append(e.problems,
				fmt.Errorf("%s: unresolved placeholder ${%s}", where, name))
			return match
		}
		return value
	})
}

// detectFormatByExt returns "yaml" or "json" based on file extension, or ""
// if unknown.
func detectFormatByExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return ""
	}
}

// detectFormatBySniff classifies raw bytes as JSON or YAML.
func detectFormatBySniff(data []byte) string {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return "json"
	}
	return "yaml"
}
