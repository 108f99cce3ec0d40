package handlers

import (
	"net/http"

	"github.com/RuFFyGTLP/TC/pkg/api/response"
	"github.com/RuFFyGTLP/TC/pkg/chat"
)

// ModelsHandler reports the local model servers and configured providers.
type ModelsHandler struct {
	detector  *chat.Detector
	providers []string
}

// ModelsResponse is the payload of the model endpoints.
type ModelsResponse struct {
	Providers []string       `json:"providers"`
	Detection chat.Detection `json:"detection"`
}

// NewModelsHandler creates a models handler.
func NewModelsHandler(det *chat.Detector, providers []string) *ModelsHandler {
	return &ModelsHandler{detector: det, providers: append([]string(nil), providers...)}
}

// List handles GET /api/v1/models. It probes once when nothing has been
// detected yet.
//
// @Summary Detected models and configured providers
// @Tags models
// @Produce json
// @Success 200 {object} ModelsResponse
// @Router /api/v1/models [get]
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	d, ok := h.detector.Latest()
	if !ok {
		d = h.detector.Detect(r.Context())
	}
	response.JSON(w, http.StatusOK, ModelsResponse{Providers: h.providers, Detection: d})
}

// Refresh handles POST /api/v1/models/refresh
//
// @Summary Probe the local model servers again
// @Tags models
// @Produce json
// @Success 200 {object} ModelsResponse
// @Router /api/v1/models/refresh [post]
func (h *ModelsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	d := h.detector.Detect(r.Context())
	response.JSON(w, http.StatusOK, ModelsResponse{Providers: h.providers, Detection: d})
}
