package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mnemos/backend/internal/completion"
	"mnemos/backend/internal/knowledge"
	"mnemos/backend/internal/protocol"
)

func toolCallResponse(calls ...completion.ToolCall) *completion.Response {
	return &completion.Response{ToolCalls: calls}
}

func TestRun_ToolLoop_ResultPerCallInOrder(t *testing.T) {
	kg := &mockKnowledge{
		procedure: &knowledge.ProcedureResult{
			Methods: []knowledge.ProcedureEntry{{Method: "use docker", Confidence: 0.9}},
		},
	}
	cg := &mockCompletion{
		responses: []*completion.Response{
			toolCallResponse(
				completion.ToolCall{ID: "call-1", Name: ToolLookupProcedure, Arguments: map[string]interface{}{"goal": "deploy app"}},
				completion.ToolCall{ID: "call-2", Name: ToolLookupProcedure, Arguments: map[string]interface{}{"goal": "configure tls"}},
			),
			{Content: "Here is how."},
		},
	}
	orch := NewOrchestrator(kg, cg, testConfig())
	emitter := &recordingEmitter{}

	stage := orch.Run(context.Background(), emitter, &protocol.ChatRequest{Message: "how do I deploy?"})

	if stage != StageDone {
		t.Fatalf("Expected DONE, got %s", stage)
	}

	// Second generation call carries system, user, assistant and one tool
	// result per requested call, in request order
	if len(cg.calls) != 2 {
		t.Fatalf("Expected 2 generation calls, got %d", len(cg.calls))
	}
	second := cg.calls[1]
	var toolMsgs []completion.Message
	for _, m := range second {
		if m.Role == completion.RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	if len(toolMsgs) != 2 {
		t.Fatalf("Expected 2 tool results, got %d", len(toolMsgs))
	}
	if toolMsgs[0].ToolCallID != "call-1" || toolMsgs[1].ToolCallID != "call-2" {
		t.Errorf("Tool results out of order: %s, %s", toolMsgs[0].ToolCallID, toolMsgs[1].ToolCallID)
	}

	// The second call must not offer tools again
	if len(cg.tools[1]) != 0 {
		t.Error("Expected no tool definitions on the final generation call")
	}

	// One tool_use event per call
	toolUses := 0
	for _, k := range emitter.kinds() {
		if k == protocol.KindToolUse {
			toolUses++
		}
	}
	if toolUses != 2 {
		t.Errorf("Expected 2 tool_use events, got %d", toolUses)
	}

	if len(kg.lookupGoal) != 2 || kg.lookupGoal[0] != "deploy app" || kg.lookupGoal[1] != "configure tls" {
		t.Errorf("Unexpected lookup goals: %v", kg.lookupGoal)
	}
}

func TestRun_ToolLoop_PartialFailureContinues(t *testing.T) {
	kg := &mockKnowledge{procErr: errors.New("lookup down")}
	cg := &mockCompletion{
		responses: []*completion.Response{
			toolCallResponse(
				completion.ToolCall{ID: "a", Name: ToolLookupProcedure, Arguments: map[string]interface{}{"goal": "x"}},
				completion.ToolCall{ID: "b", Name: ToolLookupProcedure, Arguments: map[string]interface{}{"goal": "y"}},
			),
			{Content: "best effort answer"},
		},
	}
	orch := NewOrchestrator(kg, cg, testConfig())
	emitter := &recordingEmitter{}

	stage := orch.Run(context.Background(), emitter, &protocol.ChatRequest{Message: "how?"})

	if stage != StageDone {
		t.Fatalf("Tool failure must not fail the request, got %s", stage)
	}

	second := cg.calls[1]
	markers := 0
	for _, m := range second {
		if m.Role == completion.RoleTool && strings.Contains(m.Content, "error") {
			markers++
		}
	}
	if markers != 2 {
		t.Errorf("Expected error markers for both failed calls, got %d", markers)
	}
}

func TestRun_ToolLoop_UnknownToolGetsErrorMarker(t *testing.T) {
	kg := &mockKnowledge{}
	cg := &mockCompletion{
		responses: []*completion.Response{
			toolCallResponse(completion.ToolCall{ID: "z", Name: "make_coffee", Arguments: map[string]interface{}{}}),
			{Content: "sorry"},
		},
	}
	orch := NewOrchestrator(kg, cg, testConfig())

	stage := orch.Run(context.Background(), &recordingEmitter{}, &protocol.ChatRequest{Message: "coffee?"})

	if stage != StageDone {
		t.Fatalf("Expected DONE, got %s", stage)
	}
	second := cg.calls[1]
	found := false
	for _, m := range second {
		if m.Role == completion.RoleTool && strings.Contains(m.Content, "unknown tool") {
			found = true
		}
	}
	if !found {
		t.Error("Expected unknown-tool error marker")
	}
	if len(kg.lookupGoal) != 0 {
		t.Error("Unknown tool must not hit the knowledge gateway")
	}
}

func TestFormatProcedureResult(t *testing.T) {
	result := &knowledge.ProcedureResult{
		Goal: "deploy",
		Methods: []knowledge.ProcedureEntry{
			{Method: "docker compose up", Confidence: 0.92},
		},
		Dependencies: []knowledge.ProcedureEntry{
			{Method: "install docker", Relation: "requires", Confidence: 0.8},
		},
	}

	out := formatProcedureResult(result)
	if !strings.Contains(out, "docker compose up (confidence 0.92)") {
		t.Errorf("Missing method line: %q", out)
	}
	if !strings.Contains(out, "install docker [requires] (confidence 0.80)") {
		t.Errorf("Missing dependency line: %q", out)
	}
	if strings.Contains(out, "Alternatives") {
		t.Error("Empty sections must be omitted")
	}
}

func TestFormatProcedureResult_Empty(t *testing.T) {
	out := formatProcedureResult(&knowledge.ProcedureResult{Goal: "fly"})
	if !strings.Contains(out, "No procedural knowledge found") {
		t.Errorf("Unexpected empty-result format: %q", out)
	}
}
