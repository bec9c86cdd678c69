package protocol

import (
	"testing"
	"time"

	apperrors "mnemos/backend/pkg/errors"
)

func TestDecode_Chat(t *testing.T) {
	in, err := Decode([]byte(`{"kind":"chat","payload":{"message":"hello","userName":"Ana"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if in.Kind != KindChat {
		t.Errorf("Expected kind %q, got %q", KindChat, in.Kind)
	}
	if in.Chat == nil || in.Chat.Message != "hello" {
		t.Fatalf("Expected chat payload with message 'hello', got %+v", in.Chat)
	}
	if in.Chat.UserName != "Ana" {
		t.Errorf("Expected userName 'Ana', got %q", in.Chat.UserName)
	}
	if !in.Chat.Retrieve() {
		t.Error("Expected retrieval to default to enabled when autoRetrieve is absent")
	}
}

func TestDecode_Chat_AutoRetrieveDisabled(t *testing.T) {
	in, err := Decode([]byte(`{"kind":"chat","payload":{"message":"hi","autoRetrieve":false}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if in.Chat.Retrieve() {
		t.Error("Expected retrieval disabled when autoRetrieve is false")
	}
}

func TestDecode_Query(t *testing.T) {
	in, err := Decode([]byte(`{"kind":"query","payload":{"text":"X","limit":5}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if in.Query == nil || in.Query.Text != "X" || in.Query.Limit != 5 {
		t.Errorf("Unexpected query payload: %+v", in.Query)
	}
}

func TestDecode_Graph(t *testing.T) {
	in, err := Decode([]byte(`{"kind":"graph","payload":{"query":"golang"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if in.Graph == nil || in.Graph.Query != "golang" {
		t.Errorf("Unexpected graph payload: %+v", in.Graph)
	}
	if in.Graph.Limit != 0 {
		t.Errorf("Expected zero limit when absent, got %d", in.Graph.Limit)
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"foo","payload":{}}`))
	if err == nil {
		t.Fatal("Expected error for unknown kind")
	}
	if !apperrors.IsErrorType(err, apperrors.ErrorTypeProtocol) {
		t.Errorf("Expected protocol error, got %v", err)
	}
}

func TestDecode_MalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	if err == nil {
		t.Fatal("Expected error for malformed JSON")
	}
}

func TestDecode_EmptyMessage(t *testing.T) {
	cases := map[string]string{
		"chat":  `{"kind":"chat","payload":{"message":"  "}}`,
		"query": `{"kind":"query","payload":{"text":""}}`,
		"graph": `{"kind":"graph","payload":{}}`,
	}
	for name, raw := range cases {
		if _, err := Decode([]byte(raw)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestOutboundConstructors_Kinds(t *testing.T) {
	now := time.Now()
	cases := []struct {
		env  Outbound
		kind string
	}{
		{Connected("abc"), KindConnected},
		{UserMessage("hi", now), KindUserMessage},
		{Status("working"), KindStatus},
		{MemoryRetrieved(nil, now), KindMemoryRetrieved},
		{ToolUse("lookup_procedure", "deploy"), KindToolUse},
		{AssistantMessage("hello", now), KindAssistantMessage},
		{ConversationSaved(nil), KindConversationSaved},
		{QueryResult(nil), KindQueryResult},
		{GraphData(nil), KindGraphData},
		{Error("boom"), KindError},
	}
	for _, tc := range cases {
		if tc.env.Kind != tc.kind {
			t.Errorf("Expected kind %q, got %q", tc.kind, tc.env.Kind)
		}
	}
}

func TestConnected_CarriesSessionID(t *testing.T) {
	env := Connected("session-42")
	payload, ok := env.Payload.(ConnectedPayload)
	if !ok {
		t.Fatalf("Expected ConnectedPayload, got %T", env.Payload)
	}
	if payload.SessionID != "session-42" {
		t.Errorf("Expected session id 'session-42', got %q", payload.SessionID)
	}
}
