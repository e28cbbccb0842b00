package handler

import (
	"net/http"

	"commUnity/internal/service"

	"github.com/gin-gonic/gin"
)

type CommunityHandler struct {
	svc *service.CommunityService
}

type CommunityCreateReq struct {
	Name        string `json:"name" form:"name" binding:"required"`
	Description string `json:"description" form:"description"`
	Location    string `json:"location" form:"location"`
}

type CommunityEditReq struct {
	Name        *string `json:"name" form:"name"`
	Description *string `json:"description" form:"description"`
	Location    *string `json:"location" form:"location"`
}

type CommunityIDReq struct {
	CommunityID ID `json:"communityId" binding:"required"`
}

type DelMemberReq struct {
	CommunityID ID `json:"communityId" binding:"required"`
	UserID      ID `json:"userId" binding:"required"`
}

type FilterReq struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

func NewCommunityHandler(svc *service.CommunityService) *CommunityHandler {
	return &CommunityHandler{svc: svc}
}

func (h *CommunityHandler) Create(c *gin.Context) {
	var req CommunityCreateReq
	if err := c.ShouldBind(&req); err != nil {
		bindErr(c)
		return
	}

	community, err := h.svc.CreateCommunity(c.Request.Context(), currentUser(c), service.CommunityInput{
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
	}, optionalFile(c, "image"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Community created successfully", "community": community})
}

func (h *CommunityHandler) Edit(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req CommunityEditReq
	if err := c.ShouldBind(&req); err != nil {
		bindErr(c)
		return
	}
	community, err := h.svc.EditCommunity(c.Request.Context(), currentUser(c), id, service.CommunityPatch{
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
	}, optionalFile(c, "image"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Community updated successfully", "community": community})
}

func (h *CommunityHandler) Delete(c *gin.Context) {
	var req CommunityIDReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c)
		return
	}
	if err := h.svc.DeleteCommunity(c.Request.Context(), currentUser(c), uint64(req.CommunityID)); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Community deleted successfully"})
}

func (h *CommunityHandler) Join(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	joined, err := h.svc.JoinCommunity(c.Request.Context(), currentUser(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	msg := "Joined community successfully"
	if !joined {
		msg = "Already a member"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "joined": joined})
}

func (h *CommunityHandler) Leave(c *gin.Context) {
	var req CommunityIDReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c)
		return
	}
	change, err := h.svc.LeaveCommunity(c.Request.Context(), currentUser(c), uint64(req.CommunityID))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Left community successfully", "ownerChange": change})
}

// RemoveMember 所有者踢出成员
func (h *CommunityHandler) RemoveMember(c *gin.Context) {
	var req DelMemberReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c)
		return
	}
	change, err := h.svc.RemoveMember(c.Request.Context(), currentUser(c), uint64(req.CommunityID), uint64(req.UserID))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member removed successfully", "ownerChange": change})
}

func (h *CommunityHandler) IsMember(c *gin.Context) {
	communityID, ok := paramID(c, "communityId")
	if !ok {
		return
	}
	userID, ok := paramID(c, "userId")
	if !ok {
		return
	}
	isMember, err := h.svc.IsMember(c.Request.Context(), communityID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"isMember": isMember})
}

func (h *CommunityHandler) Explore(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	community, err := h.svc.Explore(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"community": community})
}

func (h *CommunityHandler) MyCommunities(c *gin.Context) {
	list, err := h.svc.ListOwned(c.Request.Context(), currentUser(c))
	h.list(c, list, err)
}

func (h *CommunityHandler) JoinedCommunities(c *gin.Context) {
	list, err := h.svc.ListJoined(c.Request.Context(), currentUser(c))
	h.list(c, list, err)
}

func (h *CommunityHandler) AssociatedCommunities(c *gin.Context) {
	list, err := h.svc.ListAssociated(c.Request.Context(), currentUser(c))
	h.list(c, list, err)
}

func (h *CommunityHandler) Top10(c *gin.Context) {
	list, err := h.svc.Top(c.Request.Context(), 10)
	h.list(c, list, err)
}

func (h *CommunityHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		q = c.Query("query")
	}
	list, err := h.svc.Search(c.Request.Context(), q)
	h.list(c, list, err)
}

func (h *CommunityHandler) Filter(c *gin.Context) {
	var req FilterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c)
		return
	}
	list, err := h.svc.Filter(c.Request.Context(), req.Name, req.Location)
	h.list(c, list, err)
}

func (h *CommunityHandler) list(c *gin.Context, list any, err error) {
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"communities": list})
}
