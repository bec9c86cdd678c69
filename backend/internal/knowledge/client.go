package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "mnemos/backend/pkg/errors"
	"mnemos/backend/pkg/logger"
	"go.uber.org/zap"
)

// Gateway is the capability surface the orchestrator depends on. The HTTP
// client below is the production implementation; tests substitute mocks.
type Gateway interface {
	QueryFacts(ctx context.Context, text string, limit int, summarize bool) (*MemoryContext, error)
	LookupProcedure(ctx context.Context, goal string, limit int) (*ProcedureResult, error)
	IngestConversation(ctx context.Context, turn ConversationTurn) (*IngestResult, error)
}

// Client talks to the Knowledge Service over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Knowledge Service client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.Get(),
	}
}

// factRecord is the wire shape of one fact: a [subject, predicate, object]
// tuple with confidence carried separately
type factRecord struct {
	Triple     []string `json:"triple"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type queryFactsRequest struct {
	Text      string `json:"text"`
	Limit     int    `json:"limit"`
	Summarize bool   `json:"summarize"`
}

type queryFactsResponse struct {
	Summary string       `json:"summary,omitempty"`
	Results []factRecord `json:"results"`
}

// QueryFacts retrieves facts relevant to a text, optionally with a generated summary
func (c *Client) QueryFacts(ctx context.Context, text string, limit int, summarize bool) (*MemoryContext, error) {
	var resp queryFactsResponse
	if err := c.post(ctx, "/query", queryFactsRequest{Text: text, Limit: limit, Summarize: summarize}, &resp); err != nil {
		return nil, err
	}

	mc := &MemoryContext{
		Summary: resp.Summary,
		Facts:   make([]Fact, 0, len(resp.Results)),
	}
	for _, rec := range resp.Results {
		fact, ok := convertRecord(rec)
		if !ok {
			c.logger.Warn("Dropping malformed fact tuple",
				zap.Int("arity", len(rec.Triple)),
			)
			continue
		}
		mc.Facts = append(mc.Facts, fact)
	}
	return mc, nil
}

// convertRecord validates one wire record and turns it into a typed Fact.
// Missing confidence defaults to 0.
func convertRecord(rec factRecord) (Fact, bool) {
	if len(rec.Triple) != 3 {
		return Fact{}, false
	}
	fact := Fact{
		Subject:   rec.Triple[0],
		Predicate: rec.Triple[1],
		Object:    rec.Triple[2],
	}
	if rec.Confidence != nil {
		fact.Confidence = *rec.Confidence
	}
	return fact, true
}

type lookupProcedureRequest struct {
	Goal                string `json:"goal"`
	Limit               int    `json:"limit"`
	IncludeAlternatives bool   `json:"include_alternatives"`
	IncludeDependencies bool   `json:"include_dependencies"`
	IncludeExamples     bool   `json:"include_examples"`
}

// LookupProcedure asks the service how to achieve a goal, with alternatives,
// dependencies and examples included
func (c *Client) LookupProcedure(ctx context.Context, goal string, limit int) (*ProcedureResult, error) {
	req := lookupProcedureRequest{
		Goal:                goal,
		Limit:               limit,
		IncludeAlternatives: true,
		IncludeDependencies: true,
		IncludeExamples:     true,
	}
	var result ProcedureResult
	if err := c.post(ctx, "/procedures/query", req, &result); err != nil {
		return nil, err
	}
	result.Goal = goal
	return &result, nil
}

// IngestConversation submits one exchanged turn pair. The service decides
// whether to buffer or process it immediately.
func (c *Client) IngestConversation(ctx context.Context, turn ConversationTurn) (*IngestResult, error) {
	var result IngestResult
	if err := c.post(ctx, "/ingest/conversation", turn, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type ingestDocumentRequest struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// IngestDocument submits a raw document for fact extraction
func (c *Client) IngestDocument(ctx context.Context, content, source string) (*IngestResult, error) {
	var result IngestResult
	if err := c.post(ctx, "/ingest/document", ingestDocumentRequest{Content: content, Source: source}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health checks service reachability
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil)
}

// GetStats fetches service statistics
func (c *Client) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := c.get(ctx, "/stats", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// ExploreTopic fetches entities and facts around a named topic
func (c *Client) ExploreTopic(ctx context.Context, topic string, limit int) (json.RawMessage, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("/topics/%s?limit=%d", url.PathEscape(topic), limit)
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, path, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewKnowledgeUnavailable(path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewKnowledgeUnavailable(path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Knowledge service error",
			zap.Int("status_code", resp.StatusCode),
			zap.String("path", path),
			zap.String("response_body", string(body)),
		)
		return apperrors.NewKnowledgeBadStatus(path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewKnowledgeUnavailable(path, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
