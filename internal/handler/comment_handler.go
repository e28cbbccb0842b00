package handler

import (
	"net/http"

	"commUnity/internal/service"

	"github.com/gin-gonic/gin"
)

type CommentHandler struct {
	svc *service.CommentService
}

type CommentCreateReq struct {
	EventID ID     `json:"eventId" binding:"required"`
	Body    string `json:"body" binding:"required"`
}

func NewCommentHandler(svc *service.CommentService) *CommentHandler {
	return &CommentHandler{svc: svc}
}

func (h *CommentHandler) CreateComment(c *gin.Context) {
	var req CommentCreateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c)
		return
	}
	comment, err := h.svc.CreateComment(c.Request.Context(), currentUser(c), uint64(req.EventID), req.Body)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Comment added", "comment": comment})
}

func (h *CommentHandler) GetComments(c *gin.Context) {
	id, ok := paramID(c, "eventId")
	if !ok {
		return
	}
	comments, err := h.svc.ListByEvent(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (h *CommentHandler) DeleteComment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteComment(c.Request.Context(), currentUser(c), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted successfully"})
}
