package tools

import (
	"context"
	"testing"

	"toolplane/internal/authz/domain"
)

func newTestRegistry() *Registry {
	return NewRegistry(
		&Tool{Name: "health_check", Kind: KindPublic},
		&Tool{Name: "search_web", Kind: KindAuthenticated, Binding: domain.ToolBinding{ToolName: "search_web"}},
		&Tool{Name: "list_users", Kind: KindAdmin, Binding: domain.ToolBinding{ToolName: "list_users"}},
	)
}

func TestRegistry_ListFiltersByRole(t *testing.T) {
	r := newTestRegistry()

	anon := r.List(nil)
	if len(anon) != 1 || anon[0].Name != "health_check" {
		t.Errorf("anonymous should see only the public tool, got %+v", anon)
	}

	user := r.List([]string{"user"})
	names := map[string]bool{}
	for _, t := range user {
		names[t.Name] = true
	}
	if !names["health_check"] || !names["search_web"] || names["list_users"] {
		t.Errorf("authenticated non-admin list wrong: %v", names)
	}

	admin := r.List([]string{"admin"})
	if len(admin) != 3 {
		t.Errorf("admin should see all 3 tools, got %d", len(admin))
	}
}

func TestSchema_ValidateRequiredAndType(t *testing.T) {
	s := Schema{Fields: []Field{
		{Name: "query", Type: FieldString, Required: true},
		{Name: "limit", Type: FieldNumber, Required: false},
	}}

	if err := s.Validate(map[string]interface{}{"query": "cats"}); err != nil {
		t.Errorf("expected valid args to pass, got %v", err)
	}
	if err := s.Validate(map[string]interface{}{}); err == nil {
		t.Error("expected missing required field to fail")
	}
	if err := s.Validate(map[string]interface{}{"query": 5}); err == nil {
		t.Error("expected wrong type to fail")
	}
}

func TestRegistry_Bindings(t *testing.T) {
	r := newTestRegistry()
	bindings := r.Bindings()
	if _, ok := bindings["search_web"]; !ok {
		t.Error("expected search_web binding to be present")
	}
}

func TestFanOut_PartialSuccess(t *testing.T) {
	factory := NewRetrieverFactory()
	factory.Register(RetrieverVectorDB, func() Retriever { return &failingRetriever{} })

	res, err := FanOut(context.Background(), factory, []Branch{
		{Source: "web", Kind: RetrieverWebSearch, Query: "cats"},
		{Source: "vector", Kind: RetrieverVectorDB, Query: "cats"},
	})
	if err != nil {
		t.Fatalf("FanOut: %v", err)
	}
	if res.AllFailed() {
		t.Fatal("expected partial success, not all-failed")
	}
	var sawOK, sawErr bool
	for _, r := range res.Results {
		if r.Error == "" {
			sawOK = true
		} else {
			sawErr = true
		}
	}
	if !sawOK || !sawErr {
		t.Errorf("expected one success and one failure, got %+v", res.Results)
	}
}

func TestFanOut_AllFailed(t *testing.T) {
	factory := NewRetrieverFactory()
	factory.Register(RetrieverWebSearch, func() Retriever { return &failingRetriever{} })
	factory.Register(RetrieverVectorDB, func() Retriever { return &failingRetriever{} })

	res, err := FanOut(context.Background(), factory, []Branch{
		{Source: "web", Kind: RetrieverWebSearch, Query: "cats"},
		{Source: "vector", Kind: RetrieverVectorDB, Query: "cats"},
	})
	if err != nil {
		t.Fatalf("FanOut: %v", err)
	}
	if !res.AllFailed() {
		t.Fatal("expected all branches to fail")
	}
}

type failingRetriever struct{}

func (f *failingRetriever) Connect(ctx context.Context) error    { return nil }
func (f *failingRetriever) Disconnect(ctx context.Context) error { return nil }
func (f *failingRetriever) Health(ctx context.Context) error     { return nil }
func (f *failingRetriever) Retrieve(ctx context.Context, query string, options map[string]interface{}) ([]RetrieverResult, error) {
	return nil, errAlwaysFails
}

var errAlwaysFails = fanOutTestErr("retriever unavailable")

type fanOutTestErr string

func (e fanOutTestErr) Error() string { return string(e) }
