package audit

import "strings"

// ActionResource holds the action and resource an audit entry records for one request.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseToolCall returns the action/resource pair for a tools/list or tools/call request,
// adapted from the teacher's ParseFullMethod (internal/audit/mapping.go), which split a gRPC
// full method "/pkg.v1.UserService/GetUser" into a verb and a service-derived noun. JSON-RPC's
// dispatch surface has only two methods, so the split is simpler: tools/list always audits as
// "list tool"; tools/call audits the concrete tool name as the resource.
func ParseToolCall(method, toolName string) ActionResource {
	if method == "tools/list" {
		return ActionResource{Action: "list", Resource: "tool"}
	}
	if toolName == "" {
		toolName = "unknown"
	}
	return ActionResource{Action: "call", Resource: toolName}
}

// ParseAdminMethod returns the action/resource pair for an Admin Surface method, whose names
// already follow a verb_noun convention (list_users, set_user_roles, revoke_permission, ...), so
// splitting on the first underscore recovers both parts directly — unlike ParseToolCall there is
// no service-name-to-resource derivation to do.
func ParseAdminMethod(method string) ActionResource {
	idx := strings.Index(method, "_")
	if idx < 0 {
		return ActionResource{Action: method, Resource: "unknown"}
	}
	return ActionResource{Action: method[:idx], Resource: method[idx+1:]}
}
