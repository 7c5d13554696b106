package authz

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const conditionsPackage = "toolplane.grant_condition"

// ConditionEvaluator evaluates a Permission Grant's optional "conditions" field — a Rego snippet
// defining a single rule, allow — against the request's resolved attributes.
type ConditionEvaluator struct{}

// NewConditionEvaluator returns a ConditionEvaluator. It holds no state; OPA compiles each
// grant's conditions fresh since grants rarely share identical condition text.
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{}
}

// Input is the attribute set a grant's conditions may reference.
type Input struct {
	Principal map[string]interface{} `json:"principal"`
	Resource  map[string]interface{} `json:"resource"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Evaluate compiles conditions (expected to define "allow") and evaluates it against input. An
// empty conditions string always evaluates true (an unconditional grant).
func (e *ConditionEvaluator) Evaluate(ctx context.Context, conditions string, input Input) (bool, error) {
	if conditions == "" {
		return true, nil
	}

	module := fmt.Sprintf("package %s\n\n%s", conditionsPackage, conditions)
	compiler, err := ast.CompileModules(map[string]string{"condition.rego": module})
	if err != nil {
		return false, fmt.Errorf("compiling grant conditions: %w", err)
	}

	q := rego.New(
		rego.Query(fmt.Sprintf("data.%s.allow", conditionsPackage)),
		rego.Compiler(compiler),
		rego.Input(map[string]interface{}{
			"principal": input.Principal,
			"resource":  input.Resource,
			"arguments": input.Arguments,
		}),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("evaluating grant conditions: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allow, _ := rs[0].Expressions[0].Value.(bool)
	return allow, nil
}
