package llmtools

import (
	"encoding/json"

	"github.com/openai/openai-go"

	"github.com/harun/toolbelt/pkg/registry"
)

// OpenAITools exports every tool of reg as OpenAI function tools.
func OpenAITools(reg *registry.Registry) []openai.ChatCompletionToolParam {
	defs := Definitions(reg)
	tools := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  openai.FunctionParameters(d.Parameters),
			},
		})
	}
	return tools
}

// FromOpenAI converts an OpenAI tool call.
func FromOpenAI(tc openai.ChatCompletionMessageToolCall) Call {
	return Call{
		ID:        tc.ID,
		Name:      tc.Function.Name,
		Arguments: json.RawMessage(tc.Function.Arguments),
	}
}

// OpenAIMessage renders o as a tool message.
func (o Outcome) OpenAIMessage() openai.ChatCompletionMessageParamUnion {
	return openai.ToolMessage(o.Content(), o.CallID)
}
