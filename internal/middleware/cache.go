package middleware

import (
	"context"
	"encoding/json"

	"toolplane/internal/apperr"
	"toolplane/internal/cache"
	"toolplane/internal/jsonrpc"
	"toolplane/internal/tools"
)

// Getter is the subset of the Result Cache the stage needs.
type Getter interface {
	Get(ctx context.Context, tool, principalScope string, arguments map[string]interface{}, fn cache.Compute) (interface{}, error)
}

// Cache wraps Dispatch for cache-eligible tools/call requests: it consults the Result Cache
// before running next, and on a miss lets Get's singleflight-coordinated Compute call next
// exactly once per fingerprint. Non-cacheable tools and tools/list pass straight through.
func Cache(c Getter, registry *tools.Registry) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
			if req.Method != jsonrpc.MethodToolsCall {
				return next(ctx, req)
			}
			var params jsonrpc.ToolCallParams
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return nil, apperr.Validation("malformed tools/call params", err)
			}
			tool, ok := registry.Get(params.Name)
			if !ok || !tool.Cacheable {
				return next(ctx, req)
			}

			principalScope := ""
			if tool.PrincipalVarying {
				if p, ok := GetPrincipal(ctx); ok {
					principalScope = p.UserID
				}
			}

			var stageErr *apperr.Error
			result, err := c.Get(ctx, tool.Name, principalScope, params.Arguments, func(ctx context.Context) (interface{}, error) {
				resp, aerr := next(ctx, req)
				if aerr != nil {
					stageErr = aerr
					return nil, aerr
				}
				return resp.Result, nil
			})
			if err != nil {
				if stageErr != nil {
					return nil, stageErr
				}
				return nil, apperr.Internal("computing tool result", err)
			}
			return jsonrpc.Success(req.ID, result), nil
		}
	}
}
