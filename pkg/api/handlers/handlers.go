// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/RuFFyGTLP/TC/pkg/api/middleware"
)

type handlerLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}

func orNop(l handlerLogger) handlerLogger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

func getRequestID(ctx context.Context) string {
	if id := middleware.GetRequestID(ctx); id != "" {
		return id
	}
	return "unknown"
}

// queryInt reads a positive integer query parameter, falling back to def
// when it is missing or invalid.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
