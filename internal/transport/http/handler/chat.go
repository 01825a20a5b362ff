package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docuchat/internal/ai"
	"docuchat/internal/app"
	"docuchat/internal/transport/http/middleware"
	"docuchat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService         *app.ChatService
	defaultSystemPrompt string
}

func NewChatHandler(chatService *app.ChatService, defaultSystemPrompt string) *ChatHandler {
	return &ChatHandler{
		chatService:         chatService,
		defaultSystemPrompt: defaultSystemPrompt,
	}
}

type createSessionRequest struct {
	Title string `json:"title"`
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "not authenticated")
		return
	}

	// Body is optional, an absent title falls back to the default.
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request: "+err.Error())
		return
	}

	session, err := h.chatService.CreateSession(app.CreateSessionInput{
		UserID: userID,
		Title:  req.Title,
	})
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create session failed")
		return
	}

	response.OK(c, session)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "not authenticated")
		return
	}

	sessions, err := h.chatService.ListSessions(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list sessions failed")
		return
	}

	response.OK(c, sessions)
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "not authenticated")
		return
	}

	sessionID, err := pathID(c, "session_id")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return
	}

	if err := h.chatService.DeleteSession(c.Request.Context(), userID, sessionID); err != nil {
		if errors.Is(err, app.ErrSessionNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, "session not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete session failed")
		return
	}

	response.OK(c, nil)
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "not authenticated")
		return
	}

	sessionID, err := pathID(c, "session_id")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return
	}

	messages, err := h.chatService.GetHistory(c.Request.Context(), userID, sessionID)
	if err != nil {
		if errors.Is(err, app.ErrSessionNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, "session not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get history failed")
		return
	}

	response.OK(c, messages)
}

type converseRequest struct {
	SessionID    uint   `json:"session_id" binding:"required"`
	Message      string `json:"message" binding:"required"`
	Backend      string `json:"backend"`
	SystemPrompt string `json:"system_prompt"`
	EnableRAG    bool   `json:"enable_rag"`
}

func (h *ChatHandler) Converse(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "not authenticated")
		return
	}

	var req converseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request: "+err.Error())
		return
	}

	backend := req.Backend
	if backend == "" {
		backend = ai.BackendClaude
	}
	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = h.defaultSystemPrompt
	}

	reply, err := h.chatService.Converse(c.Request.Context(), app.ConverseInput{
		SessionID:    req.SessionID,
		UserID:       userID,
		Backend:      backend,
		SystemPrompt: systemPrompt,
		UserInput:    req.Message,
		EnableRAG:    req.EnableRAG,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, "session not found")
		case errors.Is(err, app.ErrMessageEmpty):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "message content is empty")
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid chat request")
		case errors.Is(err, ai.ErrUnsupportedBackend):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "unsupported model backend")
		case errors.Is(err, ai.ErrBackendUnavailable):
			response.Error(c, http.StatusServiceUnavailable, response.CodeBackendUnavailable, "model backend unavailable")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "chat failed")
		}
		return
	}

	response.OK(c, gin.H{
		"session_id": req.SessionID,
		"reply":      reply,
	})
}

func pathID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}
