package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/RuFFyGTLP/TC/pkg/api/response"
	"github.com/RuFFyGTLP/TC/pkg/logger"
)

// Recovery turns a handler panic into a 500 error envelope and logs the
// stack. http.ErrAbortHandler is re-raised so net/http can drop the
// connection quietly.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(p)
				}

				requestID := GetRequestID(r.Context())
				log.ErrorContext(r.Context(), "Panic recovered",
					"request_id", requestID,
					"error", fmt.Sprint(p),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				if requestID == "" {
					requestID = "unknown"
				}
				response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Internal server error", requestID)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
