package knowledge

// Fact is one (subject, predicate, object) relation with a confidence score.
// The Knowledge Service ships facts as bare tuple arrays with a side channel
// of metadata; this package converts them to Fact exactly once so nothing
// downstream re-derives the tuple shape.
type Fact struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

// MemoryContext is the result of a fact query: raw scored facts plus an
// optional generated textual summary
type MemoryContext struct {
	Summary string `json:"summary,omitempty"`
	Facts   []Fact `json:"facts"`
}

// HasSummary reports whether the service produced a usable summary
func (m *MemoryContext) HasSummary() bool {
	return m != nil && m.Summary != ""
}

// ProcedureEntry is one ranked method, alternative, dependency or example
// returned by a procedure lookup
type ProcedureEntry struct {
	Method     string  `json:"method"`
	Relation   string  `json:"relation,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ProcedureResult groups everything the service knows about achieving a goal
type ProcedureResult struct {
	Goal         string           `json:"goal"`
	Methods      []ProcedureEntry `json:"methods"`
	Alternatives []ProcedureEntry `json:"alternatives,omitempty"`
	Dependencies []ProcedureEntry `json:"dependencies,omitempty"`
	Examples     []ProcedureEntry `json:"examples,omitempty"`
}

// ConversationTurn is one exchanged user/assistant pair submitted for ingestion
type ConversationTurn struct {
	UserMessage      string `json:"user_message"`
	AssistantMessage string `json:"assistant_message"`
	UserName         string `json:"user_name"`
	AssistantName    string `json:"assistant_name"`
}

// IngestResult reports whether the service buffered the turn or processed it
// into durable facts immediately
type IngestResult struct {
	Buffered   bool   `json:"buffered"`
	BufferSize int    `json:"buffer_size,omitempty"`
	FactsAdded int    `json:"facts_added,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Stats is an opaque statistics blob passed through to callers
type Stats map[string]interface{}
