package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestTaxonomyCodesAndStatuses(t *testing.T) {
	cases := []struct {
		err        *Error
		code       int
		httpStatus int
	}{
		{Validation("bad params", nil), -32602, 400},
		{Authentication("invalid credentials", nil), -32040, 401},
		{Authorization("forbidden", nil), -32041, 403},
		{RateLimit("too many requests", nil), -32045, 429},
		{NotFound("unknown tool", nil), -32601, 404},
		{Retriever("upstream failed", nil), -32603, 502},
		{Gateway("tool server unreachable", nil), -32603, 502},
		{ServiceUnavailable("saturated", nil), -32000, 503},
		{Internal("unexpected", nil), -32603, 500},
	}
	for _, c := range cases {
		if got := c.err.Code(); got != c.code {
			t.Errorf("%s: Code() = %d, want %d", c.err.Kind, got, c.code)
		}
		if got := c.err.HTTPStatus(); got != c.httpStatus {
			t.Errorf("%s: HTTPStatus() = %d, want %d", c.err.Kind, got, c.httpStatus)
		}
	}
}

func TestAsUnwrapsWrappedError(t *testing.T) {
	base := Authentication("invalid credentials", errors.New("bcrypt mismatch"))
	wrapped := fmt.Errorf("login: %w", base)

	ae, ok := As(wrapped)
	if !ok {
		t.Fatal("expected As to find the wrapped *Error")
	}
	if ae.Kind != KindAuthentication {
		t.Errorf("Kind = %s, want %s", ae.Kind, KindAuthentication)
	}
}

func TestAsFalseForPlainError(t *testing.T) {
	if _, ok := As(errors.New("plain")); ok {
		t.Error("expected As to report false for a non-apperr error")
	}
}
