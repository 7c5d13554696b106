package middleware

import (
	"context"
	"encoding/json"
	"testing"

	"toolplane/internal/apperr"
	"toolplane/internal/authz"
	"toolplane/internal/credential"
	"toolplane/internal/jsonrpc"
)

type fakeEngine struct {
	decision authz.Decision
	err      error
	gotRoles []string
}

func (f *fakeEngine) Authorize(ctx context.Context, principal authz.Principal, toolName string, arguments map[string]interface{}) (authz.Decision, error) {
	f.gotRoles = principal.Roles
	return f.decision, f.err
}

func toolCallRequest(t *testing.T, name string) *jsonrpc.Request {
	t.Helper()
	params, err := json.Marshal(jsonrpc.ToolCallParams{Name: name, Arguments: map[string]interface{}{}})
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`1`), Method: jsonrpc.MethodToolsCall, Params: params}
}

func TestAuthorization_AllowsAndConvertsPrincipal(t *testing.T) {
	engine := &fakeEngine{decision: authz.Decision{Allowed: true}}
	var ran bool
	handler := Authorization(engine)(func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
		ran = true
		return jsonrpc.Success(req.ID, nil), nil
	})

	ctx := WithPrincipal(context.Background(), credential.Principal{UserID: "u1", Roles: []string{"user"}})
	_, err := handler(ctx, toolCallRequest(t, "search_web"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("next handler should have run")
	}
	if len(engine.gotRoles) != 1 || engine.gotRoles[0] != "user" {
		t.Errorf("engine saw roles %v, want [user]", engine.gotRoles)
	}
}

func TestAuthorization_DeniesMapToStableReasons(t *testing.T) {
	cases := []struct {
		reason   string
		wantKind apperr.Kind
	}{
		{authz.ReasonUnknownTool, apperr.KindNotFound},
		{authz.ReasonUnauthenticated, apperr.KindAuthentication},
		{authz.ReasonRoleInsufficient, apperr.KindAuthorization},
		{authz.ReasonResourceForbidden, apperr.KindAuthorization},
	}
	for _, c := range cases {
		engine := &fakeEngine{decision: authz.Decision{Allowed: false, Reason: c.reason}}
		handler := Authorization(engine)(okHandler)
		_, err := handler(context.Background(), toolCallRequest(t, "search_web"))
		if err == nil || err.Kind != c.wantKind {
			t.Errorf("reason %q: got %v, want kind %q", c.reason, err, c.wantKind)
		}
	}
}

func TestAuthorization_ToolsListPassesThrough(t *testing.T) {
	engine := &fakeEngine{}
	var ran bool
	handler := Authorization(engine)(func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
		ran = true
		return jsonrpc.Success(req.ID, nil), nil
	})
	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`1`), Method: jsonrpc.MethodToolsList}
	if _, err := handler(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("tools/list should pass straight through without calling Authorize")
	}
}
