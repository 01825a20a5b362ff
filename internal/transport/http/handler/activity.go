package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docuchat/internal/repository"
	"docuchat/internal/transport/http/middleware"
	"docuchat/internal/transport/http/response"
)

// ActivityHandler serves the per-user activity feed written by the event
// persist worker. The feed is best-effort; absence of an event proves
// nothing.
type ActivityHandler struct {
	eventRepo *repository.ActivityEventRepository
}

func NewActivityHandler(eventRepo *repository.ActivityEventRepository) *ActivityHandler {
	return &ActivityHandler{eventRepo: eventRepo}
}

func (h *ActivityHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "not authenticated")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := h.eventRepo.ListByUserID(userID, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list activity failed")
		return
	}

	response.OK(c, events)
}
