package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RuFFyGTLP/TC/pkg/agent"
	"github.com/RuFFyGTLP/TC/pkg/api/response"
	"github.com/RuFFyGTLP/TC/pkg/chat"
)

const defaultHistoryLimit = 50

// ChatHandler serves agent conversations.
type ChatHandler struct {
	service *agent.Service
	logger  handlerLogger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(svc *agent.Service, log handlerLogger) *ChatHandler {
	return &ChatHandler{service: svc, logger: orNop(log)}
}

type chatRequest struct {
	Message string `json:"message" validate:"required"`
}

type clearResponse struct {
	Cleared int `json:"cleared"`
}

// Send handles POST /api/v1/chat/{agent}
//
// @Summary Send a message to an agent
// @Tags chat
// @Accept json
// @Produce json
// @Param agent path string true "Agent"
// @Param request body chatRequest true "Message"
// @Success 200 {object} agent.Reply
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /api/v1/chat/{agent} [post]
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "agent")

	var req chatRequest
	if err := response.Decode(r, &req); err != nil {
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	reply, err := h.service.Reply(ctx, name, req.Message)
	if err != nil {
		h.writeChatError(w, r, name, err)
		return
	}
	response.JSON(w, http.StatusOK, reply)
}

// History handles GET /api/v1/chat/{agent}/history?limit=
//
// @Summary Recent conversation with an agent
// @Tags chat
// @Produce json
// @Param agent path string true "Agent"
// @Param limit query int false "Message limit"
// @Success 200 {array} chat.Entry
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/chat/{agent}/history [get]
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "agent")
	if _, ok := agent.SystemPrompt(name); !ok {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "Unknown agent", getRequestID(r.Context()))
		return
	}

	entries := h.service.History().Recent(name, queryInt(r, "limit", defaultHistoryLimit))
	if entries == nil {
		entries = []chat.Entry{}
	}
	response.JSON(w, http.StatusOK, entries)
}

// ClearHistory handles DELETE /api/v1/chat/{agent}/history
//
// @Summary Clear the conversation with an agent
// @Tags chat
// @Produce json
// @Param agent path string true "Agent"
// @Success 200 {object} clearResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/chat/{agent}/history [delete]
func (h *ChatHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "agent")
	if _, ok := agent.SystemPrompt(name); !ok {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "Unknown agent", getRequestID(r.Context()))
		return
	}

	n := h.service.History().Clear(r.Context(), name)
	response.JSON(w, http.StatusOK, clearResponse{Cleared: n})
}

func (h *ChatHandler) writeChatError(w http.ResponseWriter, r *http.Request, name string, err error) {
	requestID := getRequestID(r.Context())
	status, code := chatErrorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("Chat request failed", "agent", name, "error", err)
	}
	response.Error(w, status, code, err.Error(), requestID)
}

// chatErrorStatus maps agent and provider failures to HTTP statuses.
func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, agent.ErrUnknownAgent):
		return http.StatusNotFound, response.ErrCodeNotFound
	case errors.Is(err, agent.ErrEmptyMessage):
		return http.StatusBadRequest, response.ErrCodeValidationFailed
	case errors.Is(err, chat.ErrUnknownProvider), errors.Is(err, chat.ErrMissingAPIKey):
		return http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable
	default:
		return http.StatusBadGateway, response.ErrCodeBadGateway
	}
}
