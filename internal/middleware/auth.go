package middleware

import (
	"context"
	"errors"

	"toolplane/internal/apperr"
	"toolplane/internal/credential"
	"toolplane/internal/jsonrpc"
)

// Verifier is the subset of the Credential Service the Authentication stage needs.
type Verifier interface {
	VerifyAccess(token string) (*credential.Principal, error)
}

// Authentication extracts the bearer access credential the HTTP adapter attached to ctx
// (WithBearerToken) and, if present, verifies it and attaches the resulting Principal, adapted
// from the teacher's AuthUnary (extractBearer, ValidateAccess, WithIdentity-on-success). Unlike
// AuthUnary, a missing or invalid credential is never itself a denial here: authorize() is what
// decides whether the (possibly anonymous) principal may call the requested tool, so an
// unauthenticated caller still reaches Authorization and is denied there with a stable reason
// code rather than here with a transport-level 401 for every tool, public or not.
//
// If ctx is already marked trusted (WithTrusted — the Tool Server accepting a principal the
// Gateway already authenticated), this stage does nothing: the principal was attached upstream by
// the HTTP adapter itself, per spec.md §4.9/§6's internal trust token bypass.
func Authentication(verifier Verifier) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
			if IsTrusted(ctx) {
				return next(ctx, req)
			}
			if token := GetBearerToken(ctx); token != "" {
				principal, err := verifier.VerifyAccess(token)
				if err != nil {
					if !errors.Is(err, credential.ErrAuthentication) {
						return nil, apperr.Internal("verifying access credential", err)
					}
					// Invalid credential: proceed anonymous: Authorization decides.
				} else {
					ctx = WithPrincipal(ctx, *principal)
				}
			}
			return next(ctx, req)
		}
	}
}
