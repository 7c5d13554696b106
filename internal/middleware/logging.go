package middleware

import (
	"context"
	"encoding/json"
	"log"

	"toolplane/internal/apperr"
	"toolplane/internal/audit"
	"toolplane/internal/jsonrpc"
)

// AuditWriter records a best-effort audit entry. Satisfied by *audit.Logger; may be nil, in
// which case RequestLogging only writes its own log line.
type AuditWriter interface {
	LogEvent(ctx context.Context, principalID, action, resource, metadata string)
}

// RequestLogging logs one line per request after the handler returns, adapted from the teacher's
// AuditUnary (writes after handler, best-effort, never fails the RPC). enhanced additionally logs
// the tool call arguments with sensitive keys replaced, for the auth_with_context/full profiles;
// the minimal form logs only method, request id, and outcome. When auditor is non-nil it also
// writes a persisted audit entry alongside the log line, per SPEC_FULL.md §3's (added) Audit Log
// entry: "an Audit stage that sits alongside Request Logging in the middleware pipeline."
func RequestLogging(sensitive map[string]bool, enhanced bool, auditor AuditWriter) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
			resp, err := next(ctx, req)

			outcome := "ok"
			if err != nil {
				outcome = string(err.Kind)
			}

			var params jsonrpc.ToolCallParams
			if len(req.Params) > 0 {
				_ = json.Unmarshal(req.Params, &params)
			}

			if auditor != nil {
				principalID := "anonymous"
				if p, ok := GetPrincipal(ctx); ok {
					principalID = p.UserID
				}
				ar := audit.ParseToolCall(req.Method, params.Name)
				auditor.LogEvent(ctx, principalID, ar.Action, ar.Resource, outcome)
			}

			if !enhanced {
				log.Printf("request_id=%s method=%s outcome=%s", GetRequestID(ctx), req.Method, outcome)
				return resp, err
			}

			redacted := redactArguments(params.Arguments, sensitive)
			fields, _ := json.Marshal(redacted)
			log.Printf("request_id=%s method=%s tool=%s outcome=%s arguments=%s",
				GetRequestID(ctx), req.Method, params.Name, outcome, fields)
			return resp, err
		}
	}
}

// redactArguments returns a shallow copy of arguments with every key in sensitive (case already
// lower-cased by Config.SensitiveFieldSet) replaced with a fixed placeholder.
func redactArguments(arguments map[string]interface{}, sensitive map[string]bool) map[string]interface{} {
	if arguments == nil {
		return nil
	}
	out := make(map[string]interface{}, len(arguments))
	for k, v := range arguments {
		if sensitive[k] {
			out[k] = "[redacted]"
			continue
		}
		out[k] = v
	}
	return out
}
