package handlers

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/RuFFyGTLP/TC/pkg/api/response"
	"github.com/RuFFyGTLP/TC/pkg/chat"
	"github.com/RuFFyGTLP/TC/pkg/memory"
	"github.com/RuFFyGTLP/TC/pkg/rag"
	"github.com/RuFFyGTLP/TC/pkg/version"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	index    *rag.Index
	memory   *memory.Store
	detector *chat.Detector
	storage  string
	started  time.Time
	ready    atomic.Bool
}

// HealthStatus is the /status payload.
type HealthStatus struct {
	Status   string          `json:"status"`
	Ready    bool            `json:"ready"`
	Version  string          `json:"version"`
	Uptime   string          `json:"uptime"`
	Storage  string          `json:"storage"`
	Index    *rag.Stats      `json:"index,omitempty"`
	Memory   *memory.Stats   `json:"memory,omitempty"`
	Models   *chat.Detection `json:"models,omitempty"`
	Detected bool            `json:"detected"`
}

// NewHealthHandler creates a new health handler. Any component may be nil.
func NewHealthHandler(idx *rag.Index, mem *memory.Store, det *chat.Detector, storageType string) *HealthHandler {
	return &HealthHandler{
		index:    idx,
		memory:   mem,
		detector: det,
		storage:  storageType,
		started:  time.Now(),
	}
}

// SetReady marks the service ready once persisted state is loaded.
func (h *HealthHandler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles the /ready endpoint (readiness probe).
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready.Load() {
		response.JSON(w, http.StatusOK, map[string]bool{
			"ready": true,
		})
	} else {
		response.JSON(w, http.StatusServiceUnavailable, map[string]bool{
			"ready": false,
		})
	}
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := HealthStatus{
		Status:  "ok",
		Ready:   h.ready.Load(),
		Version: version.Get().Version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Storage: h.storage,
	}
	if h.index != nil {
		s := h.index.Stats()
		st.Index = &s
	}
	if h.memory != nil {
		s := h.memory.Stats()
		st.Memory = &s
	}
	if h.detector != nil {
		if d, ok := h.detector.Latest(); ok {
			st.Models = &d
			st.Detected = true
		}
	}
	response.JSON(w, http.StatusOK, st)
}
