package response

import (
	"errors"
	"net/http"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// Common error codes
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeConflict           = "CONFLICT"
	ErrCodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
	ErrCodeBadGateway         = "BAD_GATEWAY"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"
)

// Common errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrValidationFailed   = errors.New("validation failed")
	ErrConflict           = errors.New("resource conflict")
	ErrPayloadTooLarge    = errors.New("payload too large")
	ErrUpstream           = errors.New("upstream provider failed")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("request timeout")
	ErrInternalServer     = errors.New("internal server error")
)

// HTTPStatusFromError m// statusOf lists sentinel errors in match order. Wrapped errors resolve
// to the first sentinel they contain.
var statusOf = []struct {
	err    error
	status int
}{
	{ErrNotFound, http.StatusNotFound},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrValidationFailed, http.StatusBadRequest},
	{ErrConflict, http.StatusConflict},
	{ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
	{ErrUpstream, http.StatusBadGateway},
	{ErrServiceUnavailable, http.StatusServiceUnavailable},
	{ErrTimeout, http.StatusGatewayTimeout},
}

var codeOf = map[int]string{
	http.StatusBadRequest:            ErrCodeBadRequest,
	http.StatusUnauthorized:          ErrCodeUnauthorized,
	http.StatusForbidden:             ErrCodeForbidden,
	http.StatusNotFound:              ErrCodeNotFound,
	http.StatusMethodNotAllowed:      ErrCodeMethodNotAllowed,
	http.StatusConflict:              ErrCodeConflict,
	http.StatusRequestEntityTooLarge: ErrCodePayloadTooLarge,
	http.StatusBadGateway:            ErrCodeBadGateway,
	http.StatusServiceUnavailable:    ErrCodeServiceUnavailable,
	http.StatusGatewayTimeout:        ErrCodeGatewayTimeout,
}

// HTTPStatusFromError maps err to a status code, 500 when nothing matches.
func HTTPStatusFromError(err error) int {
	for _, s := range statusOf {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// ErrorCodeFromStatus returns the envelope code for status.
func ErrorCodeFromStatus(status int) string {
	if code, ok := codeOf[status]; ok {
		return code
	}
	return ErrCodeInternalServer
}

// HandleError writes the envelope for err. Validation failures carry their
// field messages as details.
func HandleError(w http.ResponseWriter, err error, requestID string) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		details := make(map[string]any, len(verr.Fields))
		for field, msg := range verr.Fields {
			details[field] = msg
		}
		ErrorWithDetails(w, http.StatusBadRequest, ErrCodeValidationFailed, verr.Error(), details, requestID)
		return
	}

	status := HTTPStatusFromError(err)
	code := ErrorCodeFromStatus(status)
	Error(w, status, code, err.Error(), requestID)
}
