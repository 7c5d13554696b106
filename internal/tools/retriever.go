package tools

import (
	"context"
	"fmt"
	"time"
)

// RetrieverResult is one item a retriever yields, the Go-side shape of QueryResult.
type RetrieverResult struct {
	Source   string                 `json:"source"`
	Title    string                 `json:"title"`
	Content  string                 `json:"content"`
	URL      string                 `json:"url,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Retriever is the capability consumed, not implemented, by this system (spec.md §6): connect,
// disconnect, retrieve, and a health check, one instance per retriever kind (web_search,
// vector_db, database).
type Retriever interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Retrieve(ctx context.Context, query string, options map[string]interface{}) ([]RetrieverResult, error)
	Health(ctx context.Context) error
}

// RetrieverKind names one of the three resource types a grant/binding can reference.
type RetrieverKind string

const (
	RetrieverWebSearch RetrieverKind = "web_search"
	RetrieverVectorDB  RetrieverKind = "vector_db"
	RetrieverDatabase  RetrieverKind = "database"
)

// RetrieverFactory constructs a Retriever for kind. The production system wires real
// implementations (web search API, vector DB client, relational DB client) here; this package
// ships only the mock/no-op implementations below.
type RetrieverFactory struct {
	byKind map[RetrieverKind]func() Retriever
}

// NewRetrieverFactory returns a factory pre-populated with the mock retriever for each kind.
func NewRetrieverFactory() *RetrieverFactory {
	return &RetrieverFactory{
		byKind: map[RetrieverKind]func() Retriever{
			RetrieverWebSearch: func() Retriever { return NewMockRetriever(RetrieverWebSearch) },
			RetrieverVectorDB:  func() Retriever { return NewMockRetriever(RetrieverVectorDB) },
			RetrieverDatabase:  func() Retriever { return NewMockRetriever(RetrieverDatabase) },
		},
	}
}

// Register overrides the constructor used for kind, letting a deployment swap in a real
// retriever without changing dispatch code.
func (f *RetrieverFactory) Register(kind RetrieverKind, ctor func() Retriever) {
	f.byKind[kind] = ctor
}

// New constructs a Retriever for kind, or an error if no constructor is registered.
func (f *RetrieverFactory) New(kind RetrieverKind) (Retriever, error) {
	ctor, ok := f.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("no retriever registered for kind %q", kind)
	}
	return ctor(), nil
}

// MockRetriever returns canned results for its kind. Grounded on the teacher's
// unimplemented-by-default handler stubs (internal/admin/handler, internal/health/handler), but
// answers with real canned data instead of Unimplemented, since spec.md §8's end-to-end
// scenarios require a retriever that actually responds.
type MockRetriever struct {
	kind      RetrieverKind
	connected bool
}

// NewMockRetriever returns a MockRetriever for kind.
func NewMockRetriever(kind RetrieverKind) *MockRetriever {
	return &MockRetriever{kind: kind}
}

func (m *MockRetriever) Connect(ctx context.Context) error {
	m.connected = true
	return nil
}

func (m *MockRetriever) Disconnect(ctx context.Context) error {
	m.connected = false
	return nil
}

func (m *MockRetriever) Health(ctx context.Context) error {
	if !m.connected {
		return fmt.Errorf("mock retriever %s: not connected", m.kind)
	}
	return nil
}

func (m *MockRetriever) Retrieve(ctx context.Context, query string, options map[string]interface{}) ([]RetrieverResult, error) {
	if !m.connected {
		return nil, fmt.Errorf("mock retriever %s: not connected", m.kind)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	return []RetrieverResult{
		{
			Source:  string(m.kind),
			Title:   fmt.Sprintf("%s result for %q", m.kind, query),
			Content: fmt.Sprintf("canned %s content matching %q", m.kind, query),
			Metadata: map[string]interface{}{
				"mock":      true,
				"retrieved": now,
			},
		},
	}, nil
}
