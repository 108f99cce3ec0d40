package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/RuFFyGTLP/TC/pkg/api/response"
	"github.com/RuFFyGTLP/TC/pkg/logger"
)

// timeoutWriter serializes writes between the handler goroutine and the
// timeout path. Writes after the deadline are dropped.
type timeoutWriter struct {
	http.ResponseWriter
	mu          sync.Mutex
	timedOut    bool
	wroteHeader bool
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.wroteHeader {
		return
	}
	tw.wroteHeader = true
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	tw.wroteHeader = true
	return tw.ResponseWriter.Write(b)
}

// expire marks the writer as timed out and reports whether the handler had
// not started its response yet.
func (tw *timeoutWriter) expire() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.timedOut = true
	return !tw.wroteHeader
}

// Timeout bounds each request with a context deadline. When the deadline
// passes before the handler starts writing, the client gets a 504
// envelope. A response already in flight is cut off instead. A nil log
// disables the timeout warnings.
func Timeout(timeout time.Duration, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			tw := &timeoutWriter{ResponseWriter: w}
			done := make(chan struct{})
			panicked := make(chan any, 1)

			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- p
					}
				}()
				next.ServeHTTP(tw, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
			case p := <-panicked:
				// Recovery runs on the serving goroutine.
				panic(p)
			case <-ctx.Done():
				requestID := GetRequestID(r.Context())
				if requestID == "" {
					requestID = "unknown"
				}
				started := !tw.expire()
				if log != nil {
					log.WarnContext(r.Context(), "Request timed out",
						"method", r.Method,
						"path", r.URL.Path,
						"request_id", requestID,
						"timeout", timeout.String(),
						"response_started", started,
					)
				}
				if started {
					return
				}
				response.Error(w, http.StatusGatewayTimeout, response.ErrCodeGatewayTimeout, "Request timeout", requestID)
			}
		})
	}
}
