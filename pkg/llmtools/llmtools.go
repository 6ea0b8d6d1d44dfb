// Package llmtools connects a registry to chat-completion function calling.
//
// Tool definitions are exported in the shape each provider expects, and tool
// calls coming back from the model are run through a registry.Runner with
// the outcome rendered as a tool-result message. Provider function names may
// not contain "/", so full names are encoded with "__" on the way out and
// decoded on the way back.
package llmtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/harun/toolbelt/pkg/registry"
	"github.com/harun/toolbelt/pkg/schema"
	"github.com/harun/toolbelt/pkg/tool"
)

const nameSeparator = "__"

// EncodeName converts a full tool name to a provider function name.
func EncodeName(fullName string) string {
	return strings.ReplaceAll(fullName, tool.Separator, nameSeparator)
}

// DecodeName reverses EncodeName.
func DecodeName(name string) string {
	return strings.ReplaceAll(name, nameSeparator, tool.Separator)
}

// Definition is a provider-neutral function definition.
type Definition struct {
	// Name is the encoded function name.
	Name        string
	FullName    string
	Description string
	Parameters  map[string]interface{}
}

// Definitions returns a definition for every tool in reg, sorted by full name.
func Definitions(reg *registry.Registry) []Definition {
	entries := reg.Entries()
	defs := make([]Definition, 0, len(entries))
	for _, e := range entries {
		defs = append(defs, Definition{
			Name:        EncodeName(e.FullName),
			FullName:    e.FullName,
			Description: e.Tool.Definition.Description,
			Parameters:  parameters(e.Tool),
		})
	}
	return defs
}

func parameters(t tool.Tool) map[string]interface{} {
	in, _ := t.Schemas()
	if in == nil {
		return map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		}
	}
	return in.Doc()
}

// Call is a tool call requested by a model.
type Call struct {
	ID string
	// Name is the encoded function name as the model sent it.
	Name      string
	Arguments json.RawMessage
}

// Outcome is the result of one call, ready to hand back to the model.
type Outcome struct {
	CallID   string
	FullName string
	Output   interface{}
	Err      error
	// Retryable reports whether the same call may succeed if repeated.
	Retryable bool
}

// Invoke runs call through runner.
func Invoke(ctx context.Context, runner registry.Runner, call Call) Outcome {
	fullName := DecodeName(call.Name)

	var input interface{}
	if len(call.Arguments) > 0 {
		input = call.Arguments
	}

	out, err := runner.Run(ctx, fullName, input)
	return Outcome{
		CallID:    call.ID,
		FullName:  fullName,
		Output:    out,
		Err:       err,
		Retryable: tool.IsRetryable(err),
	}
}

// Content renders the outcome as tool-result text: the JSON output, or an
// error description the model can act on.
func (o Outcome) Content() string {
	if o.Err == nil {
		data, err := json.Marshal(o.Output)
		if err != nil {
			return fmt.Sprintf("error: failed to encode output: %v", err)
		}
		return string(data)
	}

	msg := fmt.Sprintf("error [%s]: %v", tool.CodeOf(o.Err), o.Err)

	var validation *schema.ValidationError
	if errors.As(o.Err, &validation) {
		var issues []string
		for _, issue := range validation.Issues {
			issues = append(issues, issue.Field+": "+issue.Message)
		}
		msg += "\ninvalid fields: " + strings.Join(issues, "; ")
	}
	if o.Retryable {
		msg += "\nthis failure is transient; the call may be retried"
	}
	return msg
}
