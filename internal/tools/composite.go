package tools

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Branch is one retriever call a composite tool fans out to.
type Branch struct {
	Source   string
	Kind     RetrieverKind
	Query    string
	Options  map[string]interface{}
	Deadline time.Duration
}

// CompositeResult aggregates every branch's outcome. The composite only fails outright if every
// branch failed; otherwise partial success is returned with per-branch status, per spec.md §4.7.
type CompositeResult struct {
	Results []Result
}

// AllFailed reports whether every branch in r errored.
func (r CompositeResult) AllFailed() bool {
	for _, res := range r.Results {
		if res.Error == "" {
			return false
		}
	}
	return len(r.Results) > 0
}

// FanOut runs each branch concurrently against factory's retrievers, bounding each branch by its
// own deadline, and aggregates partial results. Grounded on spec.md §5's composite-tool fan-out
// requirement (golang.org/x/sync/errgroup, consistent with golang.org/x/time and
// golang.org/x/crypto already pulled in by the teacher's go.mod).
func FanOut(ctx context.Context, factory *RetrieverFactory, branches []Branch) (CompositeResult, error) {
	results := make([]Result, len(branches))

	g, ctx := errgroup.WithContext(ctx)
	for i, branch := range branches {
		i, branch := i, branch
		g.Go(func() error {
			branchCtx := ctx
			if branch.Deadline > 0 {
				var cancel context.CancelFunc
				branchCtx, cancel = context.WithTimeout(ctx, branch.Deadline)
				defer cancel()
			}

			retriever, err := factory.New(branch.Kind)
			if err != nil {
				results[i] = Result{Source: branch.Source, Error: err.Error()}
				return nil
			}
			if err := retriever.Connect(branchCtx); err != nil {
				results[i] = Result{Source: branch.Source, Error: err.Error()}
				return nil
			}
			defer retriever.Disconnect(branchCtx)

			items, err := retriever.Retrieve(branchCtx, branch.Query, branch.Options)
			if err != nil {
				results[i] = Result{Source: branch.Source, Error: err.Error()}
				return nil
			}
			results[i] = Result{Source: branch.Source, Content: items}
			return nil
		})
	}
	// errgroup's returned error is always nil here: each branch reports failure into its own
	// Result slot instead of aborting the group, so partial success can be aggregated below.
	_ = g.Wait()

	out := CompositeResult{Results: results}
	return out, nil
}
