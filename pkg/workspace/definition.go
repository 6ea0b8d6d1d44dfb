package workspace

// ToolkitFile is the on-disk form of a declarative toolkit. One file declares
// one namespace.
type ToolkitFile struct {
	Name        string                    `json:"name" yaml:"name"`
	Description string                    `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string                    `json:"version,omitempty" yaml:"version,omitempty"`
	Author      string                    `json:"author,omitempty" yaml:"author,omitempty"`
	Tools       map[string]ToolDefinition `json:"tools" yaml:"tools"`
}

// ToolDefinition declares one tool inside a toolkit file.
type ToolDefinition struct {
	Metadata       ToolMetadata             `json:"metadata" yaml:"metadata"`
	Implementation ImplementationDefinition `json:"implementation" yaml:"implementation"`
}

// ToolMetadata is the descriptive part of a declared tool.
type ToolMetadata struct {
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string   `json:"version,omitempty" yaml:"version,omitempty"`
	Author      string   `json:"author,omitempty" yaml:"author,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// ImplementationDefinition selects and configures the execution strategy.
type ImplementationDefinition struct {
	Kind         string                 `json:"kind" yaml:"kind"`
	InputSchema  map[string]interface{} `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	OutputSchema map[string]interface{} `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`

	// native
	Function string `json:"function,omitempty" yaml:"function,omitempty"`

	// http
	URL         string            `json:"url,omitempty" yaml:"url,omitempty"`
	Method      string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	BodyMapping map[string]string `json:"body_mapping,omitempty" yaml:"body_mapping,omitempty"`
	Timeout     string            `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// remote
	Service string `json:"service,omitempty" yaml:"service,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}
