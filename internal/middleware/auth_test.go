package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"toolplane/internal/apperr"
	"toolplane/internal/credential"
	"toolplane/internal/jsonrpc"
)

type fakeVerifier struct {
	principal *credential.Principal
	err       error
}

func (f *fakeVerifier) VerifyAccess(token string) (*credential.Principal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.principal, nil
}

func captureHandler(ok *bool, p *credential.Principal) Handler {
	return func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
		got, isSet := GetPrincipal(ctx)
		*ok = isSet
		if isSet {
			*p = got
		}
		return jsonrpc.Success(req.ID, nil), nil
	}
}

func TestAuthentication_NoTokenPassesAnonymous(t *testing.T) {
	stage := Authentication(&fakeVerifier{})
	var captured bool
	var p credential.Principal
	handler := stage(captureHandler(&captured, &p))

	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "tools/list"}
	if _, err := handler(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured {
		t.Error("no principal should be attached without a bearer token")
	}
}

func TestAuthentication_ValidTokenAttachesPrincipal(t *testing.T) {
	stage := Authentication(&fakeVerifier{principal: &credential.Principal{UserID: "u1", Roles: []string{"user"}}})
	var captured bool
	var p credential.Principal
	handler := stage(captureHandler(&captured, &p))

	ctx := WithBearerToken(context.Background(), "valid-token")
	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "tools/list"}
	if _, err := handler(ctx, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !captured || p.UserID != "u1" {
		t.Errorf("expected principal u1 attached, got captured=%v p=%+v", captured, p)
	}
}

func TestAuthentication_InvalidTokenPassesAnonymousNotDenied(t *testing.T) {
	stage := Authentication(&fakeVerifier{err: credential.ErrAuthentication})
	var captured bool
	var p credential.Principal
	handler := stage(captureHandler(&captured, &p))

	ctx := WithBearerToken(context.Background(), "bad-token")
	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "tools/list"}
	_, err := handler(ctx, req)
	if err != nil {
		t.Fatalf("an invalid credential should not itself deny the request, got %v", err)
	}
	if captured {
		t.Error("no principal should be attached for an invalid credential")
	}
}

func TestAuthentication_VerifierInternalErrorPropagates(t *testing.T) {
	stage := Authentication(&fakeVerifier{err: errors.New("db unreachable")})
	handler := stage(captureHandler(new(bool), new(credential.Principal)))

	ctx := WithBearerToken(context.Background(), "token")
	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "tools/list"}
	_, err := handler(ctx, req)
	if err == nil || err.Kind != apperr.KindInternal {
		t.Fatalf("expected an internal error, got %v", err)
	}
}

func TestAuthentication_TrustedContextSkipsVerification(t *testing.T) {
	stage := Authentication(&fakeVerifier{err: errors.New("should never be called")})
	handler := stage(captureHandler(new(bool), new(credential.Principal)))

	ctx := WithTrusted(context.Background())
	ctx = WithBearerToken(ctx, "token")
	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "tools/list"}
	if _, err := handler(ctx, req); err != nil {
		t.Fatalf("trusted context should bypass verification entirely, got %v", err)
	}
}
