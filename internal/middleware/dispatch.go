package middleware

import (
	"context"
	"encoding/json"

	"toolplane/internal/apperr"
	"toolplane/internal/jsonrpc"
	"toolplane/internal/tools"
)

// toolDescriptor is the tools/list wire shape for one visible tool.
type toolDescriptor struct {
	Name string     `json:"name"`
	Kind tools.Kind `json:"kind"`
}

// Dispatch is the innermost Handler: it resolves tools/list and tools/call against registry and
// invokes a tool's Implementation. requireAuthForList resolves an Open Question left open by the
// source system (see SPEC_FULL.md §9/Config.RequireAuthForList's doc comment): true rejects an
// anonymous tools/list call outright; false serves it filtered down to public tools.
func Dispatch(registry *tools.Registry, requireAuthForList bool) Handler {
	return func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
		switch req.Method {
		case jsonrpc.MethodToolsList:
			return dispatchList(ctx, req, registry, requireAuthForList)
		case jsonrpc.MethodToolsCall:
			return dispatchCall(ctx, req, registry)
		default:
			return nil, apperr.NotFound("unknown method", nil).WithData(map[string]interface{}{"method": req.Method})
		}
	}
}

func dispatchList(ctx context.Context, req *jsonrpc.Request, registry *tools.Registry, requireAuthForList bool) (*jsonrpc.Response, *apperr.Error) {
	principal, authenticated := GetPrincipal(ctx)
	if requireAuthForList && !authenticated {
		return nil, apperr.Authentication("authentication required to list tools", nil)
	}

	var roles []string
	if authenticated {
		roles = principal.Roles
	}
	visible := registry.List(roles)

	descriptors := make([]toolDescriptor, 0, len(visible))
	for _, t := range visible {
		descriptors = append(descriptors, toolDescriptor{Name: t.Name, Kind: t.Kind})
	}
	return jsonrpc.Success(req.ID, descriptors), nil
}

func dispatchCall(ctx context.Context, req *jsonrpc.Request, registry *tools.Registry) (*jsonrpc.Response, *apperr.Error) {
	var params jsonrpc.ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, apperr.Validation("malformed tools/call params", err)
	}
	tool, ok := registry.Get(params.Name)
	if !ok {
		return nil, apperr.NotFound("unknown tool", nil).WithData(map[string]interface{}{"tool": params.Name})
	}
	if err := tool.Schema.Validate(params.Arguments); err != nil {
		return nil, apperr.Validation(err.Error(), err).WithData(map[string]interface{}{"tool": params.Name})
	}

	result, err := tool.Implementation(ctx, params.Arguments)
	if err != nil {
		if ae, ok := apperr.As(err); ok {
			return nil, ae
		}
		return nil, apperr.Retriever("tool invocation failed", err).WithData(map[string]interface{}{"tool": params.Name})
	}
	return jsonrpc.Success(req.ID, result), nil
}
