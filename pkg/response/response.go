package response

import "github.com/qhomebase/contract-renewal/pkg/errs"

// New generic response spec
type APIResponseCode int

const (
	APIResponseCodeOK           APIResponseCode = 0
	APIResponseCodeBadRequest   APIResponseCode = 40000
	APIResponseCodeUnauthorized APIResponseCode = 40100
	APIResponseCodeForbidden    APIResponseCode = 40300
	APIResponseCodeNotFound     APIResponseCode = 40400
	APIResponseCodeConflict     APIResponseCode = 40900
	APIResponseCodeError        APIResponseCode = 50000
	APIResponseCodeUpstream     APIResponseCode = 50200
)

var codeToMsg = map[APIResponseCode]string{
	APIResponseCodeOK:           "ok",
	APIResponseCodeBadRequest:   "bad request",
	APIResponseCodeUnauthorized: "unauthorized",
	APIResponseCodeForbidden:    "forbidden",
	APIResponseCodeNotFound:     "not found",
	APIResponseCodeConflict:     "precondition failed",
	APIResponseCodeError:        "unexpected error",
	APIResponseCodeUpstream:     "upstream service error",
}

// APIResponse is the generic response envelope used by HTTP APIs.
// Use OKT / ErrorT helpers to construct instances.
type APIResponse[T any] struct {
	Code    APIResponseCode `json:"code"`
	Message string          `json:"message"`
	Reason  errs.Reason     `json:"reason,omitempty"`
	Data    T               `json:"data"`
}

// OKT returns a successful response with data.
func OKT[T any](data T) *APIResponse[T] {
	return &APIResponse[T]{Code: APIResponseCodeOK, Message: codeToMsg[APIResponseCodeOK], Data: data}
}

// ErrorT returns an error response with message and optional data.
func ErrorT[T any](code APIResponseCode, data T) *APIResponse[T] {
	return &APIResponse[T]{Code: code, Message: codeToMsg[code], Data: data}
}

// CodeOf maps the error taxonomy onto envelope codes.
func CodeOf(err error) APIResponseCode {
	switch {
	case err == nil:
		return APIResponseCodeOK
	case errs.IsValidation(err):
		return APIResponseCodeBadRequest
	case errs.IsNotFound(err):
		return APIResponseCodeNotFound
	case errs.IsPermission(err):
		return APIResponseCodeForbidden
	case errs.IsPrecondition(err):
		return APIResponseCodeConflict
	case errs.IsExternal(err):
		return APIResponseCodeUpstream
	default:
		return APIResponseCodeError
	}
}

// FromError builds an error envelope carrying the error text as data.
func FromError(err error) *APIResponse[any] {
	code := CodeOf(err)
	return &APIResponse[any]{Code: code, Message: codeToMsg[code], Reason: errs.ReasonOf(err), Data: err.Error()}
}
