package middleware

import (
	"context"
	"encoding/json"

	"toolplane/internal/apperr"
	"toolplane/internal/jsonrpc"
	"toolplane/internal/tools"
)

// Validation checks the envelope version, the method name, and (for tools/call) the tool's
// argument schema before anything downstream runs — grounded on the teacher's pattern of
// rejecting malformed input as early in the interceptor chain as possible, generalized here from
// gRPC's built-in proto decoding to hand-rolled JSON-RPC envelope and argument checks since this
// system has no generated request types.
func Validation(registry *tools.Registry) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
			if req.JSONRPC != jsonrpc.Version {
				return nil, apperr.Validation("unsupported jsonrpc version", nil)
			}
			switch req.Method {
			case jsonrpc.MethodToolsList:
				// no params to validate
			case jsonrpc.MethodToolsCall:
				var params jsonrpc.ToolCallParams
				if err := json.Unmarshal(req.Params, &params); err != nil {
					return nil, apperr.Validation("malformed tools/call params", err)
				}
				if params.Name == "" {
					return nil, apperr.Validation("tools/call requires a tool name", nil)
				}
				tool, ok := registry.Get(params.Name)
				if !ok {
					return nil, apperr.NotFound("unknown tool", nil).WithData(map[string]interface{}{"tool": params.Name})
				}
				if err := tool.Schema.Validate(params.Arguments); err != nil {
					return nil, apperr.Validation(err.Error(), err).WithData(map[string]interface{}{"tool": params.Name})
				}
			default:
				return nil, apperr.NotFound("unknown method", nil).WithData(map[string]interface{}{"method": req.Method})
			}
			return next(ctx, req)
		}
	}
}
