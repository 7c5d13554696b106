package tools

import (
	"context"
	"fmt"

	"toolplane/internal/apperr"
	"toolplane/internal/authz/domain"
)

// catalogTool names, matching the Authorization Engine's static bindings and the Result Cache's
// per-tool TTL keys (config.Config.CacheTTLWebSearch/VectorDB/Database).
const (
	ToolSearchWeb      = "search_web"
	ToolSearchVectors  = "search_vectors"
	ToolSearchDatabase = "search_database"
	ToolSearchAll      = "search_all"
)

// resultLimit caps how many items a single retriever branch returns, clamped from the caller's
// optional "limit" argument (spec.md §8 scenario 1: "at most 3 results").
func resultLimit(arguments map[string]interface{}, fallback int) int {
	v, ok := arguments["limit"]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		if n > 0 {
			return int(n)
		}
	case int:
		if n > 0 {
			return n
		}
	}
	return fallback
}

func clamp(results []RetrieverResult, limit int) []RetrieverResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}

func queryArgument(arguments map[string]interface{}) (string, error) {
	v, ok := arguments["query"]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", "query")
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", "query")
	}
	return s, nil
}

// NewCatalog builds the static set of dispatchable tools (search_web, search_vectors,
// search_database, search_all), each bound to a RetrieverFactory-backed Implementation.
// Grounded on spec.md §4.7's tool catalog and §8 scenario 5's composite wire shape
// (`{web: {...}, vector: [...], database: [...]}`).
func NewCatalog(factory *RetrieverFactory) []*Tool {
	return []*Tool{
		searchWebTool(factory),
		searchVectorsTool(factory),
		searchDatabaseTool(factory),
		searchAllTool(factory),
	}
}

func retrieve(ctx context.Context, factory *RetrieverFactory, kind RetrieverKind, query string, options map[string]interface{}) ([]RetrieverResult, error) {
	retriever, err := factory.New(kind)
	if err != nil {
		return nil, apperr.Retriever(fmt.Sprintf("no retriever available for %s", kind), err)
	}
	if err := retriever.Connect(ctx); err != nil {
		return nil, apperr.Retriever(fmt.Sprintf("%s retriever unavailable", kind), err)
	}
	defer retriever.Disconnect(ctx)

	results, err := retriever.Retrieve(ctx, query, options)
	if err != nil {
		return nil, apperr.Retriever(fmt.Sprintf("%s retrieval failed", kind), err)
	}
	return results, nil
}

func searchWebTool(factory *RetrieverFactory) *Tool {
	return &Tool{
		Name: ToolSearchWeb,
		Kind: KindAuthenticated,
		Binding: domain.ToolBinding{
			ToolName:     ToolSearchWeb,
			ResourceType: domain.ResourceWebSearch,
			Action:       domain.ActionRead,
			MinimumRoles: []string{domain.RoleUser, domain.RoleAdmin},
		},
		Schema: Schema{Fields: []Field{
			{Name: "query", Type: FieldString, Required: true},
			{Name: "limit", Type: FieldNumber},
		}},
		Cacheable: true,
		Implementation: func(ctx context.Context, arguments map[string]interface{}) (interface{}, error) {
			query, err := queryArgument(arguments)
			if err != nil {
				return nil, apperr.Validation(err.Error(), err)
			}
			results, err := retrieve(ctx, factory, RetrieverWebSearch, query, arguments)
			if err != nil {
				return nil, err
			}
			return clamp(results, resultLimit(arguments, 10)), nil
		},
	}
}

// searchVectorsTool resolves its resource from the "collection" argument, so grants can scope a
// user to specific vector collections (spec.md §4.4's resource-pattern matching).
func searchVectorsTool(factory *RetrieverFactory) *Tool {
	return &Tool{
		Name: ToolSearchVectors,
		Kind: KindAuthenticated,
		Binding: domain.ToolBinding{
			ToolName:     ToolSearchVectors,
			ResourceType: domain.ResourceVectorDB,
			Action:       domain.ActionRead,
			MinimumRoles: []string{domain.RoleUser, domain.RoleAdmin},
		},
		Schema: Schema{Fields: []Field{
			{Name: "query", Type: FieldString, Required: true},
			{Name: "collection", Type: FieldString, Required: true},
			{Name: "limit", Type: FieldNumber},
		}},
		Cacheable: true,
		Implementation: func(ctx context.Context, arguments map[string]interface{}) (interface{}, error) {
			query, err := queryArgument(arguments)
			if err != nil {
				return nil, apperr.Validation(err.Error(), err)
			}
			results, err := retrieve(ctx, factory, RetrieverVectorDB, query, arguments)
			if err != nil {
				return nil, err
			}
			return clamp(results, resultLimit(arguments, 10)), nil
		},
	}
}

// searchDatabaseTool resolves its resource from the "table" argument and is principal-varying:
// two callers issuing the identical query can see different rows once row-level grant conditions
// apply, so its results must be cached per-principal (spec.md §4.8).
func searchDatabaseTool(factory *RetrieverFactory) *Tool {
	return &Tool{
		Name: ToolSearchDatabase,
		Kind: KindAuthenticated,
		Binding: domain.ToolBinding{
			ToolName:     ToolSearchDatabase,
			ResourceType: domain.ResourceDatabase,
			Action:       domain.ActionRead,
			MinimumRoles: []string{domain.RoleUser, domain.RoleAdmin},
		},
		Schema: Schema{Fields: []Field{
			{Name: "query", Type: FieldString, Required: true},
			{Name: "table", Type: FieldString, Required: true},
			{Name: "limit", Type: FieldNumber},
		}},
		Cacheable:        true,
		PrincipalVarying: true,
		Implementation: func(ctx context.Context, arguments map[string]interface{}) (interface{}, error) {
			query, err := queryArgument(arguments)
			if err != nil {
				return nil, apperr.Validation(err.Error(), err)
			}
			results, err := retrieve(ctx, factory, RetrieverDatabase, query, arguments)
			if err != nil {
				return nil, err
			}
			return clamp(results, resultLimit(arguments, 10)), nil
		},
	}
}

// compositeResult is search_all's wire shape: one named slot per source, matching spec.md §8
// scenario 5 (`{web: {error: RetrieverError}, vector: [...], database: [...]}`).
type compositeResult struct {
	Web      interface{} `json:"web,omitempty"`
	Vector   interface{} `json:"vector,omitempty"`
	Database interface{} `json:"database,omitempty"`
}

// searchAllTool fans out to all three retrievers concurrently (FanOut) and reports partial
// success per branch; it is never cached, since its own branches already hit the per-tool cache
// when invoked individually and composite results are cheap to recompute from those.
func searchAllTool(factory *RetrieverFactory) *Tool {
	return &Tool{
		Name: ToolSearchAll,
		Kind: KindAuthenticated,
		Binding: domain.ToolBinding{
			ToolName:     ToolSearchAll,
			ResourceType: domain.ResourceWebSearch,
			Action:       domain.ActionRead,
			MinimumRoles: []string{domain.RoleUser, domain.RoleAdmin},
		},
		Schema: Schema{Fields: []Field{
			{Name: "query", Type: FieldString, Required: true},
			{Name: "collection", Type: FieldString},
			{Name: "table", Type: FieldString},
		}},
		Cacheable: false,
		Implementation: func(ctx context.Context, arguments map[string]interface{}) (interface{}, error) {
			query, err := queryArgument(arguments)
			if err != nil {
				return nil, apperr.Validation(err.Error(), err)
			}

			branches := []Branch{
				{Source: "web", Kind: RetrieverWebSearch, Query: query, Options: arguments},
				{Source: "vector", Kind: RetrieverVectorDB, Query: query, Options: arguments},
				{Source: "database", Kind: RetrieverDatabase, Query: query, Options: arguments},
			}
			composite, _ := FanOut(ctx, factory, branches)
			if composite.AllFailed() {
				return nil, apperr.Retriever("every search_all branch failed", nil).WithData(map[string]interface{}{
					"results": composite.Results,
				})
			}

			out := compositeResult{}
			for _, r := range composite.Results {
				var slot interface{}
				if r.Error != "" {
					slot = Result{Source: r.Source, Error: r.Error}
				} else {
					slot = r.Content
				}
				switch r.Source {
				case "web":
					out.Web = slot
				case "vector":
					out.Vector = slot
				case "database":
					out.Database = slot
				}
			}
			return out, nil
		},
	}
}
