package llmtools

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/harun/toolbelt/pkg/registry"
)

// AnthropicTools exports every tool of reg as Anthropic tool definitions.
func AnthropicTools(reg *registry.Registry) []anthropic.ToolUnionParam {
	defs := Definitions(reg)
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		toolParam := anthropic.ToolParam{
			Name:        d.Name,
			Description: anthropic.String(d.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: d.Parameters["properties"],
			},
		}

		if required, ok := d.Parameters["required"].([]interface{}); ok {
			names := make([]string, 0, len(required))
			for _, r := range required {
				if s, ok := r.(string); ok {
					names = append(names, s)
				}
			}
			toolParam.InputSchema.Required = names
		}

		tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return tools
}

// FromAnthropic converts an Anthropic tool_use block.
func FromAnthropic(b anthropic.ToolUseBlock) Call {
	return Call{
		ID:        b.ID,
		Name:      b.Name,
		Arguments: json.RawMessage(b.JSON.Input.Raw()),
	}
}

// AnthropicBlock renders o as a tool_result block.
func (o Outcome) AnthropicBlock() anthropic.ContentBlockParamUnion {
	return anthropic.NewToolResultBlock(o.CallID, o.Content(), o.Err != nil)
}
