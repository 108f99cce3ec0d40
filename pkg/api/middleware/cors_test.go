package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/RuFFyGTLP/TC/config"
)

func TestCORS(t *testing.T) {
	dashboard := &config.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"http://localhost:*", "https://tc.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         3600,
	}

	tests := []struct {
		name            string
		config          *config.CORSConfig
		method          string
		origin          string
		preflight       bool
		wantStatus      int
		wantCORSHeader  bool
		wantMethodsHdr  bool
		wantHandlerCall bool
	}{
		{
			name:            "exact origin",
			config:          dashboard,
			method:          http.MethodGet,
			origin:          "https://tc.example.com",
			wantStatus:      http.StatusOK,
			wantCORSHeader:  true,
			wantHandlerCall: true,
		},
		{
			name:            "port wildcard origin",
			config:          dashboard,
			method:          http.MethodGet,
			origin:          "http://localhost:5173",
			wantStatus:      http.StatusOK,
			wantCORSHeader:  true,
			wantHandlerCall: true,
		},
		{
			name:            "port wildcard rejects other hosts",
			config:          dashboard,
			method:          http.MethodGet,
			origin:          "http://localhost.evil.com:80",
			wantStatus:      http.StatusOK,
			wantCORSHeader:  false,
			wantHandlerCall: true,
		},
		{
			name:            "allowed preflight",
			config:          dashboard,
			method:          http.MethodOptions,
			origin:          "http://localhost:3000",
			preflight:       true,
			wantStatus:      http.StatusNoContent,
			wantCORSHeader:  true,
			wantMethodsHdr:  true,
			wantHandlerCall: false,
		},
		{
			name:            "disallowed preflight",
			config:          dashboard,
			method:          http.MethodOptions,
			origin:          "http://example.com",
			preflight:       true,
			wantStatus:      http.StatusForbidden,
			wantCORSHeader:  false,
			wantHandlerCall: false,
		},
		{
			name: "wildcard origin",
			config: &config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST"},
			},
			method:          http.MethodGet,
			origin:          "http://example.com",
			wantStatus:      http.StatusOK,
			wantCORSHeader:  true,
			wantHandlerCall: true,
		},
		{
			name:            "no origin header",
			config:          dashboard,
			method:          http.MethodGet,
			wantStatus:      http.StatusOK,
			wantCORSHeader:  false,
			wantHandlerCall: true,
		},
		{
			name: "CORS disabled",
			config: &config.CORSConfig{
				Enabled: false,
			},
			method:          http.MethodGet,
			origin:          "http://localhost:3000",
			wantStatus:      http.StatusOK,
			wantCORSHeader:  false,
			wantHandlerCall: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			wrappedHandler := CORS(tt.config)(handler)

			req := httptest.NewRequest(tt.method, "/api/v1/documents", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()

			wrappedHandler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("CORS middleware status = %v, want %v", w.Code, tt.wantStatus)
			}
			if called != tt.wantHandlerCall {
				t.Errorf("handler called = %v, want %v", called, tt.wantHandlerCall)
			}

			corsHeader := w.Header().Get("Access-Control-Allow-Origin")
			if tt.wantCORSHeader && corsHeader != tt.origin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", corsHeader, tt.origin)
			}
			if !tt.wantCORSHeader && corsHeader != "" {
				t.Error("Unexpected CORS header found")
			}

			methods := w.Header().Get("Access-Control-Allow-Methods")
			if tt.wantMethodsHdr && methods != "GET, POST" {
				t.Errorf("Access-Control-Allow-Methods = %q", methods)
			}
			if !tt.wantMethodsHdr && methods != "" {
				t.Errorf("Access-Control-Allow-Methods set on non-preflight: %q", methods)
			}
		})
	}
}
