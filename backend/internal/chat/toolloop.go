package chat

import (
	"context"
	"fmt"
	"strings"

	"mnemos/backend/internal/completion"
	"mnemos/backend/internal/knowledge"
	"mnemos/backend/internal/protocol"
	"go.uber.org/zap"
)

// ToolLookupProcedure is the single tool exposed to the Completion Service
const ToolLookupProcedure = "lookup_procedure"

// toolDefinitions returns the tool list passed on the first generation call
func toolDefinitions() []completion.Tool {
	return []completion.Tool{
		{
			Type: "function",
			Function: completion.FunctionDefinition{
				Name:        ToolLookupProcedure,
				Description: "Look up procedural knowledge: how to achieve a goal, with ranked methods, alternatives, dependencies and examples. Use this for 'how do I...' questions.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"goal": map[string]interface{}{
							"type":        "string",
							"description": "The goal to look up, e.g. 'deploy a docker container'",
						},
					},
					"required": []string{"goal"},
				},
			},
		},
	}
}

// runToolLoop resolves the requested tool calls in order. Every call gets
// exactly one tool-result message, success or error marker, so the result
// list always lines up positionally with the request list. A failed call is
// never retried; its error marker is left for the final generation to work
// around.
func (o *Orchestrator) runToolLoop(ctx context.Context, emit Emitter, calls []completion.ToolCall) []completion.Message {
	results := make([]completion.Message, 0, len(calls))

	for _, call := range calls {
		goal, _ := call.Arguments["goal"].(string)
		o.send(emit, protocol.ToolUse(call.Name, goal))

		content := o.executeToolCall(ctx, call, goal)
		results = append(results, completion.Message{
			Role:       completion.RoleTool,
			ToolCallID: call.ID,
			Content:    content,
		})
	}

	return results
}

func (o *Orchestrator) executeToolCall(ctx context.Context, call completion.ToolCall, goal string) string {
	if call.Name != ToolLookupProcedure {
		o.logger.Warn("Unknown tool requested",
			zap.String("tool", call.Name),
		)
		return fmt.Sprintf(`{"error": "unknown tool: %s"}`, call.Name)
	}
	if goal == "" {
		return `{"error": "missing goal argument"}`
	}

	result, err := o.knowledge.LookupProcedure(ctx, goal, o.cfg.ProcedureLimit)
	if err != nil {
		o.logger.Warn("Procedure lookup failed",
			zap.String("goal", goal),
			zap.Error(err),
		)
		return fmt.Sprintf(`{"error": "procedure lookup failed for goal: %s"}`, goal)
	}

	return formatProcedureResult(result)
}

// formatProcedureResult renders a lookup result compactly: one line per
// entry with method, relationship and confidence
func formatProcedureResult(result *knowledge.ProcedureResult) string {
	var sb strings.Builder

	writeSection := func(heading string, entries []knowledge.ProcedureEntry) {
		if len(entries) == 0 {
			return
		}
		sb.WriteString(heading)
		sb.WriteString(":\n")
		for _, e := range entries {
			if e.Relation != "" {
				sb.WriteString(fmt.Sprintf("- %s [%s] (confidence %.2f)\n", e.Method, e.Relation, e.Confidence))
			} else {
				sb.WriteString(fmt.Sprintf("- %s (confidence %.2f)\n", e.Method, e.Confidence))
			}
		}
	}

	writeSection("Methods", result.Methods)
	writeSection("Alternatives", result.Alternatives)
	writeSection("Dependencies", result.Dependencies)
	writeSection("Examples", result.Examples)

	if sb.Len() == 0 {
		return fmt.Sprintf("No procedural knowledge found for goal: %s", result.Goal)
	}
	return sb.String()
}
