package domain

// ToolDescriptor describes a tool exposed by an external tool server.
// InputSchema is a JSON Schema object describing the tool arguments.
type ToolDescriptor struct {
	Name        string         `json:"name" yaml:"name" mapstructure:"name"`
	Description string         `json:"description" yaml:"description" mapstructure:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty" yaml:"input_schema,omitempty" mapstructure:"input_schema"`
}

// ToolCall is a request to run a tool on a named server.
type ToolCall struct {
	Server    string         `json:"server"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}
