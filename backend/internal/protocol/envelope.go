// Package protocol defines the envelope types exchanged over a client
// connection. Inbound envelopes are decoded and validated once at the router
// boundary; outbound envelopes are only built through the constructors here,
// so kind strings never leak into other packages.
package protocol

import (
	"encoding/json"
	"strings"
	"time"

	apperrors "mnemos/backend/pkg/errors"
)

// Inbound kinds (closed set)
const (
	KindChat  = "chat"
	KindQuery = "query"
	KindGraph = "graph"
)

// Outbound kinds (closed set)
const (
	KindConnected         = "connected"
	KindUserMessage       = "user_message"
	KindStatus            = "status"
	KindMemoryRetrieved   = "memory_retrieved"
	KindToolUse           = "tool_use"
	KindAssistantMessage  = "assistant_message"
	KindConversationSaved = "conversation_saved"
	KindQueryResult       = "query_result"
	KindGraphData         = "graph_data"
	KindError             = "error"
)

// ChatRequest asks the orchestrator to run a full chat pipeline
type ChatRequest struct {
	Message       string `json:"message"`
	AutoRetrieve  *bool  `json:"autoRetrieve,omitempty"`
	UserName      string `json:"userName,omitempty"`
	AssistantName string `json:"assistantName,omitempty"`
}

// Retrieve reports whether memory retrieval should run; absent means enabled
func (r *ChatRequest) Retrieve() bool {
	return r.AutoRetrieve == nil || *r.AutoRetrieve
}

// QueryRequest is a one-shot fact retrieval
type QueryRequest struct {
	Text  string `json:"text"`
	Limit int    `json:"limit,omitempty"`
}

// GraphRequest asks for a node/link graph built from facts matching a topic
type GraphRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// Inbound is the decoded form of a client envelope. Exactly one of the
// payload fields is non-nil, matching Kind.
type Inbound struct {
	Kind  string
	Chat  *ChatRequest
	Query *QueryRequest
	Graph *GraphRequest
}

type rawEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses and validates one inbound envelope
func Decode(data []byte) (*Inbound, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.NewMalformedPayload("envelope", err)
	}

	switch raw.Kind {
	case KindChat:
		var req ChatRequest
		if err := unmarshalPayload(raw.Payload, &req); err != nil {
			return nil, apperrors.NewMalformedPayload(KindChat, err)
		}
		if strings.TrimSpace(req.Message) == "" {
			return nil, apperrors.NewMalformedPayload(KindChat, errEmptyField("message"))
		}
		return &Inbound{Kind: KindChat, Chat: &req}, nil

	case KindQuery:
		var req QueryRequest
		if err := unmarshalPayload(raw.Payload, &req); err != nil {
			return nil, apperrors.NewMalformedPayload(KindQuery, err)
		}
		if strings.TrimSpace(req.Text) == "" {
			return nil, apperrors.NewMalformedPayload(KindQuery, errEmptyField("text"))
		}
		return &Inbound{Kind: KindQuery, Query: &req}, nil

	case KindGraph:
		var req GraphRequest
		if err := unmarshalPayload(raw.Payload, &req); err != nil {
			return nil, apperrors.NewMalformedPayload(KindGraph, err)
		}
		if strings.TrimSpace(req.Query) == "" {
			return nil, apperrors.NewMalformedPayload(KindGraph, errEmptyField("query"))
		}
		return &Inbound{Kind: KindGraph, Graph: &req}, nil

	default:
		return nil, apperrors.NewUnknownKind(raw.Kind)
	}
}

func unmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return errEmptyField("payload")
	}
	return json.Unmarshal(data, v)
}

type fieldError string

func (e fieldError) Error() string { return "missing or empty field: " + string(e) }

func errEmptyField(name string) error { return fieldError(name) }

// Outbound is one server-to-client envelope
type Outbound struct {
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
}

// ConnectedPayload carries the freshly assigned session id
type ConnectedPayload struct {
	SessionID string `json:"sessionId"`
}

// MessagePayload carries one side of a conversation turn
type MessagePayload struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusPayload is a progress note for an in-flight pipeline
type StatusPayload struct {
	Message string `json:"message"`
}

// MemoryPayload carries the retrieved memory context
type MemoryPayload struct {
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// ToolUsePayload announces a procedural lookup to the client
type ToolUsePayload struct {
	Tool string `json:"tool"`
	Goal string `json:"goal"`
}

// DataPayload wraps an opaque result (query_result, graph_data, conversation_saved)
type DataPayload struct {
	Data interface{} `json:"data"`
}

// ErrorPayload carries a short, client-safe error description
type ErrorPayload struct {
	Error string `json:"error"`
}

// Connected builds the one-time acknowledgement sent on connect
func Connected(sessionID string) Outbound {
	return Outbound{Kind: KindConnected, Payload: ConnectedPayload{SessionID: sessionID}}
}

// UserMessage echoes the user's own message back with a timestamp
func UserMessage(content string, ts time.Time) Outbound {
	return Outbound{Kind: KindUserMessage, Payload: MessagePayload{Content: content, Timestamp: ts}}
}

// Status builds a progress event
func Status(message string) Outbound {
	return Outbound{Kind: KindStatus, Payload: StatusPayload{Message: message}}
}

// MemoryRetrieved builds the retrieved-context event
func MemoryRetrieved(data interface{}, ts time.Time) Outbound {
	return Outbound{Kind: KindMemoryRetrieved, Payload: MemoryPayload{Data: data, Timestamp: ts}}
}

// ToolUse builds the tool transparency event
func ToolUse(tool, goal string) Outbound {
	return Outbound{Kind: KindToolUse, Payload: ToolUsePayload{Tool: tool, Goal: goal}}
}

// AssistantMessage builds the final response event
func AssistantMessage(content string, ts time.Time) Outbound {
	return Outbound{Kind: KindAssistantMessage, Payload: MessagePayload{Content: content, Timestamp: ts}}
}

// ConversationSaved builds the ingestion-outcome event
func ConversationSaved(data interface{}) Outbound {
	return Outbound{Kind: KindConversationSaved, Payload: DataPayload{Data: data}}
}

// QueryResult builds the one-shot retrieval result event
func QueryResult(data interface{}) Outbound {
	return Outbound{Kind: KindQueryResult, Payload: DataPayload{Data: data}}
}

// GraphData builds the graph visualization event
func GraphData(graph interface{}) Outbound {
	return Outbound{Kind: KindGraphData, Payload: DataPayload{Data: graph}}
}

// Error builds a protocol/pipeline error event
func Error(message string) Outbound {
	return Outbound{Kind: KindError, Payload: ErrorPayload{Error: message}}
}
