package handler

import (
	"net/http"

	"commUnity/internal/service"

	"github.com/gin-gonic/gin"
)

type NoticeHandler struct {
	svc *service.NoticeService
}

type NoticeCreateReq struct {
	CommunityID ID     `json:"communityId" binding:"required"`
	Body        string `json:"body" binding:"required"`
}

type NoticeDeleteReq struct {
	NoticeID ID `json:"noticeId" binding:"required"`
}

func NewNoticeHandler(svc *service.NoticeService) *NoticeHandler {
	return &NoticeHandler{svc: svc}
}

func (h *NoticeHandler) CreateNotice(c *gin.Context) {
	var req NoticeCreateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c)
		return
	}
	notice, err := h.svc.CreateNotice(c.Request.Context(), currentUser(c), uint64(req.CommunityID), req.Body)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Notice created", "notice": notice})
}

func (h *NoticeHandler) GetNotices(c *gin.Context) {
	id, ok := paramID(c, "communityId")
	if !ok {
		return
	}
	notices, err := h.svc.ListNotices(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notices": notices})
}

func (h *NoticeHandler) DeleteNotice(c *gin.Context) {
	var req NoticeDeleteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c)
		return
	}
	if err := h.svc.DeleteNotice(c.Request.Context(), currentUser(c), uint64(req.NoticeID)); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notice deleted successfully"})
}
