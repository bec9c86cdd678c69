package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "mnemos/backend/pkg/errors"
)

func TestQueryFacts_ConvertsTuples(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["text"] != "capitals" {
			t.Errorf("Expected text 'capitals', got %v", req["text"])
		}
		if req["summarize"] != true {
			t.Error("Expected summarize true")
		}

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"summary": "Paris is the capital of France.",
			"results": []map[string]interface{}{
				{"triple": []string{"Paris", "capital_of", "France"}, "confidence": 0.95},
				{"triple": []string{"France", "located_in"}}, // malformed, dropped
				{"triple": []string{"Lyon", "located_in", "France"}},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	mc, err := client.QueryFacts(context.Background(), "capitals", 10, true)
	if err != nil {
		t.Fatalf("QueryFacts failed: %v", err)
	}

	if mc.Summary != "Paris is the capital of France." {
		t.Errorf("Unexpected summary: %q", mc.Summary)
	}
	if len(mc.Facts) != 2 {
		t.Fatalf("Expected 2 facts (malformed tuple dropped), got %d", len(mc.Facts))
	}
	first := mc.Facts[0]
	if first.Subject != "Paris" || first.Predicate != "capital_of" || first.Object != "France" {
		t.Errorf("Unexpected fact: %+v", first)
	}
	if first.Confidence != 0.95 {
		t.Errorf("Expected confidence 0.95, got %f", first.Confidence)
	}
	if mc.Facts[1].Confidence != 0 {
		t.Errorf("Expected default confidence 0, got %f", mc.Facts[1].Confidence)
	}
}

func TestLookupProcedure_RequestsEverything(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/procedures/query" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, flag := range []string{"include_alternatives", "include_dependencies", "include_examples"} {
			if req[flag] != true {
				t.Errorf("Expected %s true", flag)
			}
		}

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"methods": []map[string]interface{}{
				{"method": "use docker compose", "confidence": 0.9},
			},
			"alternatives": []map[string]interface{}{
				{"method": "use kubernetes", "relation": "alternative_to", "confidence": 0.6},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	result, err := client.LookupProcedure(context.Background(), "deploy a container", 10)
	if err != nil {
		t.Fatalf("LookupProcedure failed: %v", err)
	}
	if result.Goal != "deploy a container" {
		t.Errorf("Expected goal echoed back, got %q", result.Goal)
	}
	if len(result.Methods) != 1 || result.Methods[0].Method != "use docker compose" {
		t.Errorf("Unexpected methods: %+v", result.Methods)
	}
	if len(result.Alternatives) != 1 || result.Alternatives[0].Relation != "alternative_to" {
		t.Errorf("Unexpected alternatives: %+v", result.Alternatives)
	}
}

func TestIngestConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ingest/conversation" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		var turn ConversationTurn
		_ = json.NewDecoder(r.Body).Decode(&turn)
		if turn.UserName != "Ana" || turn.AssistantName != "Mnemos" {
			t.Errorf("Display names not forwarded: %+v", turn)
		}
		_ = json.NewEncoder(w).Encode(IngestResult{Buffered: true, BufferSize: 3})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	result, err := client.IngestConversation(context.Background(), ConversationTurn{
		UserMessage:      "hi",
		AssistantMessage: "hello",
		UserName:         "Ana",
		AssistantName:    "Mnemos",
	})
	if err != nil {
		t.Fatalf("IngestConversation failed: %v", err)
	}
	if !result.Buffered || result.BufferSize != 3 {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestClient_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.QueryFacts(context.Background(), "x", 5, false)
	if err == nil {
		t.Fatal("Expected error for 500 response")
	}
	if !apperrors.IsErrorType(err, apperrors.ErrorTypeKnowledge) {
		t.Errorf("Expected knowledge error, got %v", err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	if err := client.Health(context.Background()); err == nil {
		t.Fatal("Expected error for unreachable service")
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).Health(context.Background()); err != nil {
		t.Fatalf("Health failed: %v", err)
	}
}
