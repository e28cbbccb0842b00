package handler

import (
	"net/http"

	"commUnity/internal/pkg"
	"commUnity/internal/service"

	"github.com/gin-gonic/gin"
)

type EventHandler struct {
	svc *service.EventService
}

type EventCreateReq struct {
	CommunityID ID     `json:"communityId" form:"communityId" binding:"required"`
	Name        string `json:"name" form:"name" binding:"required"`
	Body        string `json:"body" form:"body"`
}

type ToggleReactionReq struct {
	UserID *ID    `json:"userId"`
	Action string `json:"action" binding:"required,oneof=like dislike"`
}

func NewEventHandler(svc *service.EventService) *EventHandler {
	return &EventHandler{svc: svc}
}

func (h *EventHandler) CreateEvent(c *gin.Context) {
	var req EventCreateReq
	if err := c.ShouldBind(&req); err != nil {
		bindErr(c)
		return
	}
	event, err := h.svc.CreateEvent(c.Request.Context(), currentUser(c), service.EventInput{
		CommunityID: uint64(req.CommunityID),
		Name:        req.Name,
		Body:        req.Body,
	}, optionalFile(c, "image"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Event created successfully", "event": event})
}

func (h *EventHandler) AllEvents(c *gin.Context) {
	h.list(c, service.EventFilter{Scope: service.ScopeAll})
}

func (h *EventHandler) UserEvents(c *gin.Context) {
	h.list(c, service.EventFilter{Scope: service.ScopeMemberships, UserID: currentUser(c)})
}

func (h *EventHandler) CommunityEvents(c *gin.Context) {
	id, ok := paramID(c, "communityId")
	if !ok {
		return
	}
	h.list(c, service.EventFilter{Scope: service.ScopeCommunity, CommunityID: id})
}

func (h *EventHandler) list(c *gin.Context, f service.EventFilter) {
	events, err := h.svc.ListEvents(c.Request.Context(), f)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "events": events})
}

// ToggleReaction 以会话用户为准；请求体中的 userId 与会话不一致时拒绝
func (h *EventHandler) ToggleReaction(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req ToggleReactionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(pkg.NewValidationError("action must be like or dislike"))
		return
	}
	userID := currentUser(c)
	if req.UserID != nil && uint64(*req.UserID) != userID {
		_ = c.Error(pkg.NewValidationError("userId does not match the session"))
		return
	}
	event, err := h.svc.ToggleReaction(c.Request.Context(), userID, id, req.Action)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Action updated", "event": event})
}

func (h *EventHandler) DeleteEvent(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteEvent(c.Request.Context(), currentUser(c), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Event deleted successfully"})
}
