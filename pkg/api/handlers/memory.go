package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/RuFFyGTLP/TC/pkg/api/response"
	"github.com/RuFFyGTLP/TC/pkg/memory"
)

// MemoryHandler handles memory-related API endpoints.
type MemoryHandler struct {
	store  *memory.Store
	logger handlerLogger
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(store *memory.Store, log handlerLogger) *MemoryHandler {
	return &MemoryHandler{
		store:  store,
		logger: orNop(log),
	}
}

// --- Request/Response types ---

type rememberRequest struct {
	Fact string `json:"fact" validate:"required"`
}

type learnRequest struct {
	Message  string `json:"message" validate:"required"`
	Response string `json:"response"`
}

type valueRequest struct {
	Value any `json:"value"`
}

type learnResponse struct {
	Learned []memory.Fact `json:"learned"`
	Facts   int           `json:"facts"`
}

type pruneResponse struct {
	Pruned int `json:"pruned"`
	Facts  int `json:"facts"`
}

type entryResponse struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// RememberFact handles POST /api/v1/memory/facts
//
// @Summary Store a long-term fact
// @Tags memory
// @Accept json
// @Produce json
// @Param request body rememberRequest true "Fact"
// @Success 201 {object} memory.Fact
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/memory/facts [post]
func (h *MemoryHandler) RememberFact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req rememberRequest
	if err := response.Decode(r, &req); err != nil {
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	if strings.TrimSpace(req.Fact) == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Fact is required", getRequestID(ctx))
		return
	}

	fact, err := h.store.Remember(ctx, req.Fact)
	if err != nil {
		h.logger.Error("Failed to store fact", "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to store fact", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusCreated, fact)
}

// RecallFacts handles GET /api/v1/memory/facts?q=&limit=
//
// @Summary Recall facts relevant to a query
// @Tags memory
// @Produce json
// @Param q query string true "Query"
// @Param limit query int false "Result limit"
// @Success 200 {array} memory.Recalled
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/memory/facts [get]
func (h *MemoryHandler) RecallFacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Query parameter q is required", getRequestID(ctx))
		return
	}

	recalled := h.store.Recall(ctx, q, queryInt(r, "limit", 0))
	if recalled == nil {
		recalled = []memory.Recalled{}
	}
	response.JSON(w, http.StatusOK, recalled)
}

// ListFacts handles GET /api/v1/memory/facts/all
//
// @Summary List every long-term fact
// @Tags memory
// @Produce json
// @Success 200 {array} memory.Fact
// @Router /api/v1/memory/facts/all [get]
func (h *MemoryHandler) ListFacts(w http.ResponseWriter, r *http.Request) {
	facts := h.store.Facts()
	if facts == nil {
		facts = []memory.Fact{}
	}
	response.JSON(w, http.StatusOK, facts)
}

// Prune handles POST /api/v1/memory/prune
//
// @Summary Prune long-term memory to its configured size
// @Description Remember and Load already keep the store at or below its cap,
// @Description so this guard normally reports zero pruned facts.
// @Tags memory
// @Produce json
// @Success 200 {object} pruneResponse
// @Router /api/v1/memory/prune [post]
func (h *MemoryHandler) Prune(w http.ResponseWriter, r *http.Request) {
	n := h.store.Prune(r.Context())
	response.JSON(w, http.StatusOK, pruneResponse{Pruned: n, Facts: h.store.FactCount()})
}

// Learn handles POST /api/v1/memory/learn
//
// @Summary Extract and store facts from an exchange
// @Tags memory
// @Accept json
// @Produce json
// @Param request body learnRequest true "Exchange"
// @Success 200 {object} learnResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/memory/learn [post]
func (h *MemoryHandler) Learn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req learnRequest
	if err := response.Decode(r, &req); err != nil {
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	learned, err := h.store.LearnFromConversation(ctx, req.Message, req.Response)
	if err != nil {
		h.logger.Error("Failed to learn from conversation", "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to learn from conversation", getRequestID(ctx))
		return
	}
	if learned == nil {
		learned = []memory.Fact{}
	}

	response.JSON(w, http.StatusOK, learnResponse{Learned: learned, Facts: h.store.FactCount()})
}

// Context handles GET /api/v1/memory/context?q=
//
// @Summary Build the memory block for a query
// @Tags memory
// @Produce json
// @Param q query string true "Query"
// @Success 200 {object} map[string]string
// @Router /api/v1/memory/context [get]
func (h *MemoryHandler) Context(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Query parameter q is required", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"context": h.store.BuildContext(ctx, q)})
}

// GetStats handles GET /api/v1/memory/stats
//
// @Summary Memory statistics
// @Tags memory
// @Produce json
// @Success 200 {object} memory.Stats
// @Router /api/v1/memory/stats [get]
func (h *MemoryHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.store.Stats())
}

// SetShortTerm handles PUT /api/v1/memory/agents/{agent}/short-term/{key}
//
// @Summary Store a short-term value for an agent
// @Tags memory
// @Accept json
// @Produce json
// @Param agent path string true "Agent"
// @Param key path string true "Key"
// @Param request body valueRequest true "Value"
// @Success 200 {object} entryResponse
// @Router /api/v1/memory/agents/{agent}/short-term/{key} [put]
func (h *MemoryHandler) SetShortTerm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agent, key := chi.URLParam(r, "agent"), chi.URLParam(r, "key")

	var req valueRequest
	if err := response.Decode(r, &req); err != nil {
		response.HandleError(w, err, getRequestID(ctx))
		return
	}
	if err := h.store.RememberShortTerm(agent, key, req.Value); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Key is required", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, entryResponse{Key: key, Value: req.Value})
}

// GetShortTerm handles GET /api/v1/memory/agents/{agent}/short-term/{key}
//
// @Summary Read a short-term value
// @Tags memory
// @Produce json
// @Param agent path string true "Agent"
// @Param key path string true "Key"
// @Success 200 {object} entryResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/memory/agents/{agent}/short-term/{key} [get]
func (h *MemoryHandler) GetShortTerm(w http.ResponseWriter, r *http.Request) {
	agent, key := chi.URLParam(r, "agent"), chi.URLParam(r, "key")

	value, ok := h.store.RecallShortTerm(agent, key)
	if !ok {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "Short-term entry not found", getRequestID(r.Context()))
		return
	}
	response.JSON(w, http.StatusOK, entryResponse{Key: key, Value: value})
}

// ListShortTerm handles GET /api/v1/memory/agents/{agent}/short-term
//
// @Summary List an agent's short-term entries
// @Tags memory
// @Produce json
// @Param agent path string true "Agent"
// @Success 200 {object} map[string]memory.ShortTermEntry
// @Router /api/v1/memory/agents/{agent}/short-term [get]
func (h *MemoryHandler) ListShortTerm(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.store.ShortTermEntries(chi.URLParam(r, "agent")))
}

// DeleteShortTerm handles DELETE /api/v1/memory/agents/{agent}/short-term/{key}
//
// @Summary Forget one short-term entry
// @Tags memory
// @Param agent path string true "Agent"
// @Param key path string true "Key"
// @Success 204
// @Router /api/v1/memory/agents/{agent}/short-term/{key} [delete]
func (h *MemoryHandler) DeleteShortTerm(w http.ResponseWriter, r *http.Request) {
	h.store.ForgetShortTerm(chi.URLParam(r, "agent"), chi.URLParam(r, "key"))
	response.NoContent(w)
}

// ClearShortTerm handles DELETE /api/v1/memory/agents/{agent}/short-term
//
// @Summary Clear an agent's short-term memory
// @Tags memory
// @Param agent path string true "Agent"
// @Success 204
// @Router /api/v1/memory/agents/{agent}/short-term [delete]
func (h *MemoryHandler) ClearShortTerm(w http.ResponseWriter, r *http.Request) {
	h.store.ClearShortTerm(chi.URLParam(r, "agent"))
	response.NoContent(w)
}

// WorkingContext handles GET /api/v1/memory/working
//
// @Summary Read the working context
// @Tags memory
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/memory/working [get]
func (h *MemoryHandler) WorkingContext(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.store.WorkingContext())
}

// SetWorking handles PUT /api/v1/memory/working/{key}
//
// @Summary Set a working-context value
// @Tags memory
// @Accept json
// @Produce json
// @Param key path string true "Key"
// @Param request body valueRequest true "Value"
// @Success 200 {object} entryResponse
// @Router /api/v1/memory/working/{key} [put]
func (h *MemoryHandler) SetWorking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	var req valueRequest
	if err := response.Decode(r, &req); err != nil {
		response.HandleError(w, err, getRequestID(ctx))
		return
	}
	if err := h.store.SetWorking(key, req.Value); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Key is required", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, entryResponse{Key: key, Value: req.Value})
}

// GetWorking handles GET /api/v1/memory/working/{key}
//
// @Summary Read a working-context value
// @Tags memory
// @Produce json
// @Param key path string true "Key"
// @Success 200 {object} entryResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/memory/working/{key} [get]
func (h *MemoryHandler) GetWorking(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, ok := h.store.GetWorking(key)
	if !ok {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "Working context key not found", getRequestID(r.Context()))
		return
	}
	response.JSON(w, http.StatusOK, entryResponse{Key: key, Value: value})
}

// ClearWorking handles DELETE /api/v1/memory/working
//
// @Summary Clear the working context
// @Tags memory
// @Success 204
// @Router /api/v1/memory/working [delete]
func (h *MemoryHandler) ClearWorking(w http.ResponseWriter, r *http.Request) {
	h.store.ClearWorking()
	response.NoContent(w)
}
