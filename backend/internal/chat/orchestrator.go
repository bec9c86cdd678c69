// Package chat drives the staged pipeline behind every chat request: echo,
// optional memory retrieval, response generation, a bounded tool-call round,
// and conversation persistence, with progress streamed to the client.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mnemos/backend/internal/completion"
	"mnemos/backend/internal/knowledge"
	"mnemos/backend/internal/protocol"
	"mnemos/backend/pkg/config"
	"mnemos/backend/pkg/logger"
	"go.uber.org/zap"
)

// Stage identifies where a pipeline run currently is
type Stage string

const (
	StageEcho          Stage = "ECHO"
	StageRetrieving    Stage = "RETRIEVING"
	StageGenerating    Stage = "GENERATING"
	StageToolExecuting Stage = "TOOL_EXECUTING"
	StagePersisting    Stage = "PERSISTING"
	StageDone          Stage = "DONE"
	StageFailed        Stage = "FAILED"
)

// Emitter delivers outbound envelopes to the session that owns the run
type Emitter interface {
	Emit(env protocol.Outbound) error
}

const systemInstruction = `You are a helpful assistant with access to two knowledge sources:
1. Retrieved memories from past conversations, included below when available.
2. A lookup_procedure tool for procedural knowledge ("how do I..." questions).
Only rely on these sources and general reasoning. If the memories below are
marked absent, do not invent remembered context.`

const noMemoriesMarker = "No relevant memories found."

// Orchestrator runs the chat pipeline against the two external gateways
type Orchestrator struct {
	knowledge  knowledge.Gateway
	completion completion.Gateway
	cfg        *config.Config
	logger     *zap.Logger
}

// NewOrchestrator creates a chat orchestrator
func NewOrchestrator(kg knowledge.Gateway, cg completion.Gateway, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		knowledge:  kg,
		completion: cg,
		cfg:        cfg,
		logger:     logger.Get(),
	}
}

// pipelineRun is the ephemeral state for one chat request. It never outlives
// the request.
type pipelineRun struct {
	stage    Stage
	req      *protocol.ChatRequest
	messages []completion.Message
	memory   *knowledge.MemoryContext
}

// Run executes the full pipeline for one chat request and returns the
// terminal stage. All user-visible output goes through the emitter; the
// caller does not need to inspect the result beyond tests.
func (o *Orchestrator) Run(ctx context.Context, emit Emitter, req *protocol.ChatRequest) Stage {
	run := &pipelineRun{stage: StageEcho, req: req}

	// ECHO: the user's own message goes out before any network call
	o.send(emit, protocol.UserMessage(req.Message, time.Now()))

	if req.Retrieve() {
		run.stage = StageRetrieving
		o.retrieve(ctx, emit, run)
	}

	run.stage = StageGenerating
	o.send(emit, protocol.Status("generating response"))

	run.messages = []completion.Message{
		{Role: completion.RoleSystem, Content: o.buildSystemPrompt(run.memory)},
		{Role: completion.RoleUser, Content: req.Message},
	}

	resp, err := o.completion.Generate(ctx, run.messages, toolDefinitions())
	if err != nil {
		return o.fail(emit, run, "failed to generate a response", err)
	}

	content := resp.Content
	if len(resp.ToolCalls) > 0 {
		run.stage = StageToolExecuting
		content, err = o.resolveTools(ctx, emit, run, resp)
		if err != nil {
			return o.fail(emit, run, "failed to generate a response", err)
		}
	}

	run.stage = StagePersisting
	o.send(emit, protocol.AssistantMessage(content, time.Now()))

	result, err := o.knowledge.IngestConversation(ctx, knowledge.ConversationTurn{
		UserMessage:      req.Message,
		AssistantMessage: content,
		UserName:         o.userName(req),
		AssistantName:    o.assistantName(req),
	})
	if err != nil {
		return o.fail(emit, run, "failed to save the conversation", err)
	}

	if result.Buffered {
		o.send(emit, protocol.Status("conversation buffered for later processing"))
	} else {
		o.send(emit, protocol.Status("conversation processed into memory"))
	}
	o.send(emit, protocol.ConversationSaved(result))

	run.stage = StageDone
	return StageDone
}

// retrieve runs the RETRIEVING stage. Retrieval failure degrades to an empty
// memory context and is never surfaced to the user.
func (o *Orchestrator) retrieve(ctx context.Context, emit Emitter, run *pipelineRun) {
	o.send(emit, protocol.Status("retrieving memories"))

	mc, err := o.knowledge.QueryFacts(ctx, run.req.Message, o.cfg.FactQueryLimit, true)
	if err != nil {
		o.logger.Warn("Memory retrieval failed, continuing without context",
			zap.Error(err),
		)
		return
	}

	run.memory = mc
	if mc.HasSummary() {
		o.send(emit, protocol.MemoryRetrieved(mc, time.Now()))
	}
}

// resolveTools runs the tool loop and re-invokes the Completion Service once
// for the final answer. The second call passes no tool definitions, which
// bounds the pipeline to a single round of tool resolution.
func (o *Orchestrator) resolveTools(ctx context.Context, emit Emitter, run *pipelineRun, resp *completion.Response) (string, error) {
	results := o.runToolLoop(ctx, emit, resp.ToolCalls)

	run.messages = append(run.messages, completion.Message{
		Role:      completion.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})
	run.messages = append(run.messages, results...)

	final, err := o.completion.Generate(ctx, run.messages, nil)
	if err != nil {
		return "", err
	}
	return final.Content, nil
}

func (o *Orchestrator) fail(emit Emitter, run *pipelineRun, message string, err error) Stage {
	o.logger.Error("Chat pipeline failed",
		zap.String("stage", string(run.stage)),
		zap.Error(err),
	)
	o.send(emit, protocol.Error(message))
	run.stage = StageFailed
	return StageFailed
}

// send delivers an envelope and logs delivery failures. A failed write means
// the connection is gone; the pipeline keeps its own course and the session
// teardown handles the rest.
func (o *Orchestrator) send(emit Emitter, env protocol.Outbound) {
	if err := emit.Emit(env); err != nil {
		o.logger.Debug("Dropped event for closed session",
			zap.String("kind", env.Kind),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) buildSystemPrompt(memory *knowledge.MemoryContext) string {
	var sb strings.Builder
	sb.WriteString(systemInstruction)
	sb.WriteString("\n\n[Retrieved Memories]\n")

	if memory == nil || (memory.Summary == "" && len(memory.Facts) == 0) {
		sb.WriteString(noMemoriesMarker)
		return sb.String()
	}

	if memory.Summary != "" {
		sb.WriteString(memory.Summary)
		sb.WriteString("\n")
	}
	for _, fact := range memory.Facts {
		sb.WriteString(fmt.Sprintf("- %s %s %s (confidence %.2f)\n",
			fact.Subject, fact.Predicate, fact.Object, fact.Confidence))
	}
	return sb.String()
}

func (o *Orchestrator) userName(req *protocol.ChatRequest) string {
	if req.UserName != "" {
		return req.UserName
	}
	return o.cfg.DefaultUserName
}

func (o *Orchestrator) assistantName(req *protocol.ChatRequest) string {
	if req.AssistantName != "" {
		return req.AssistantName
	}
	return o.cfg.DefaultAssistantName
}
