package middleware

import (
	"context"
	"encoding/json"

	"toolplane/internal/apperr"
	"toolplane/internal/authz"
	"toolplane/internal/jsonrpc"
)

// Engine is the subset of the Authorization Engine the stage needs.
type Engine interface {
	Authorize(ctx context.Context, principal authz.Principal, toolName string, arguments map[string]interface{}) (authz.Decision, error)
}

// Authorization runs authorize(principal, tool, arguments) for tools/call, converting the
// Middleware Pipeline's credential.Principal into the engine's own Principal shape (the two
// packages' Principal types collided in an earlier draft; this stage is the single place the
// conversion happens). tools/list carries no single tool to authorize — visibility there is
// filtered per-tool by the Dispatch stage via Registry.List, so this stage is a pass-through for
// it. Never omitted from a profile: even with Authentication disabled, an anonymous principal
// still reaches authorize() and is denied non-public tools with a stable reason code.
func Authorization(engine Engine) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
			if req.Method != jsonrpc.MethodToolsCall {
				return next(ctx, req)
			}

			var params jsonrpc.ToolCallParams
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return nil, apperr.Validation("malformed tools/call params", err)
			}

			principal := authz.Principal{}
			if p, ok := GetPrincipal(ctx); ok {
				principal = authz.Principal{UserID: p.UserID, Roles: p.Roles}
			}

			decision, err := engine.Authorize(ctx, principal, params.Name, params.Arguments)
			if err != nil {
				return nil, apperr.Internal("authorizing tool call", err)
			}
			if !decision.Allowed {
				return nil, denyError(decision)
			}
			return next(ctx, req)
		}
	}
}

func denyError(d authz.Decision) *apperr.Error {
	data := map[string]interface{}{"reason": d.Reason}
	switch d.Reason {
	case authz.ReasonUnknownTool:
		return apperr.NotFound("unknown tool", nil).WithData(data)
	case authz.ReasonUnauthenticated:
		return apperr.Authentication("authentication required", nil).WithData(data)
	default:
		return apperr.Authorization("not authorized to call this tool", nil).WithData(data)
	}
}
