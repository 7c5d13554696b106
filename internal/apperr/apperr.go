// Package apperr defines the stable error taxonomy shared by every component: a single Error
// type carrying a Kind, a JSON-RPC code, and the HTTP status the Gateway surfaces it as.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a stable error category. User-visible messages never vary by underlying cause beyond
// what the Kind already conveys.
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindAuthentication     Kind = "AuthenticationError"
	KindAuthorization      Kind = "AuthorizationError"
	KindRateLimit          Kind = "RateLimitError"
	KindNotFound           Kind = "NotFoundError"
	KindRetriever          Kind = "RetrieverError"
	KindGateway            Kind = "GatewayError"
	KindServiceUnavailable Kind = "ServiceUnavailableError"
	KindInternal           Kind = "InternalError"
)

// taxonomy maps each Kind to its JSON-RPC error code and HTTP transport status, per spec §7.
var taxonomy = map[Kind]struct {
	code       int
	httpStatus int
}{
	KindValidation:         {-32602, 400},
	KindAuthentication:     {-32040, 401},
	KindAuthorization:      {-32041, 403},
	KindRateLimit:          {-32045, 429},
	KindNotFound:           {-32601, 404},
	KindRetriever:          {-32603, 502},
	KindGateway:            {-32603, 502},
	KindServiceUnavailable: {-32000, 503},
	KindInternal:           {-32603, 500},
}

// Error is the single structured error type every component returns for a user-visible failure.
// Message is stable and safe to surface to a client; Cause (if set) is logged with the request id
// and never rendered to the caller.
type Error struct {
	Kind    Kind
	Message string
	Data    map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Code returns the JSON-RPC error code for e's Kind.
func (e *Error) Code() int { return taxonomy[e.Kind].code }

// HTTPStatus returns the transport status for e's Kind.
func (e *Error) HTTPStatus() int { return taxonomy[e.Kind].httpStatus }

func newErr(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(message string, cause error) *Error     { return newErr(KindValidation, message, cause) }
func Authentication(message string, cause error) *Error { return newErr(KindAuthentication, message, cause) }
func Authorization(message string, cause error) *Error  { return newErr(KindAuthorization, message, cause) }
func RateLimit(message string, cause error) *Error      { return newErr(KindRateLimit, message, cause) }
func NotFound(message string, cause error) *Error       { return newErr(KindNotFound, message, cause) }
func Retriever(message string, cause error) *Error      { return newErr(KindRetriever, message, cause) }
func Gateway(message string, cause error) *Error        { return newErr(KindGateway, message, cause) }
func ServiceUnavailable(message string, cause error) *Error {
	return newErr(KindServiceUnavailable, message, cause)
}
func Internal(message string, cause error) *Error { return newErr(KindInternal, message, cause) }

// WithData attaches additional structured data surfaced in the JSON-RPC error's "data" field.
func (e *Error) WithData(data map[string]interface{}) *Error {
	e.Data = data
	return e
}

// As reports whether err is (or wraps) an *Error, returning it if so.
func As(err error) (*Error, bool) {
	var ae *Error
	ok := errors.As(err, &ae)
	return ae, ok
}
