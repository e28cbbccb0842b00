package handler

import (
	"net/http"

	"commUnity/internal/middleware"
	"commUnity/internal/pkg"
	"commUnity/internal/service"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	svc          *service.UserService
	secureCookie bool
}

type RegisterReq struct {
	Username string `json:"username" form:"username" binding:"required"`
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required"`
	Location string `json:"location" form:"location"`
}

type EmailReq struct {
	Email string `json:"email" binding:"required"`
}

type LoginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshReq struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type UpdateUsernameReq struct {
	NewUsername string `json:"newUsername" binding:"required"`
}

type UpdatePasswordReq struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

type DeleteUserReq struct {
	UName string `json:"uName" binding:"required"`
}

func NewUserHandler(svc *service.UserService, secureCookie bool) *UserHandler {
	return &UserHandler{svc: svc, secureCookie: secureCookie}
}

func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterReq
	if err := c.ShouldBind(&req); err != nil {
		bindErr(c)
		return
	}

	user, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
		Location:   req.Location,
		ProfilePic: optionalFile(c, "profilePic"),
	})
	if pkg.IsKind(err, pkg.KindConflict) {
		c.JSON(http.StatusOK, gin.H{"exists": true, "message": "Email already exists"})
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": user})
}

func (h *UserHandler) CheckEmail(c *gin.Context) {
	var req EmailReq
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(pkg.NewValidationError("Email is required"))
		return
	}
	exists, err := h.svc.CheckEmail(c.Request.Context(), req.Email)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if exists {
		c.JSON(http.StatusOK, gin.H{"exists": true, "message": "Email already exists"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": false, "message": "email is available"})
}

func (h *UserHandler) Login(c *gin.Context) {
	var req LoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c)
		return
	}

	user, pair, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}
	setTokenCookie(c, pair.AccessToken, int(pkg.AccessTTL.Seconds()), h.secureCookie)
	c.JSON(http.StatusOK, gin.H{
		"message":      "login successful",
		"user":         user,
		"token":        pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// Logout 无论会话是否有效都清除 cookie
func (h *UserHandler) Logout(c *gin.Context) {
	token, _ := c.Cookie(middleware.TokenCookie)
	if token != "" {
		if userID, err := h.svc.Authenticate(c.Request.Context(), token); err == nil {
			if err = h.svc.Logout(c.Request.Context(), userID); err != nil {
				_ = c.Error(err)
				return
			}
		}
	}
	setTokenCookie(c, "", -1, h.secureCookie)
	c.JSON(http.StatusOK, gin.H{"message": "logout successful"})
}

func (h *UserHandler) TokenRefresh(c *gin.Context) {
	var req RefreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c)
		return
	}
	pair, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		_ = c.Error(err)
		return
	}
	setTokenCookie(c, pair.AccessToken, int(pkg.AccessTTL.Seconds()), h.secureCookie)
	c.JSON(http.StatusOK, gin.H{"token": pair.AccessToken, "refreshToken": pair.RefreshToken})
}

func (h *UserHandler) Profile(c *gin.Context) {
	user, err := h.svc.Profile(c.Request.Context(), currentUser(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *UserHandler) FetchUser(c *gin.Context) {
	id, ok := paramID(c, "userId")
	if !ok {
		return
	}
	user, err := h.svc.Profile(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "message": "user fetched successfully."})
}

func (h *UserHandler) UpdateUsername(c *gin.Context) {
	var req UpdateUsernameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(pkg.NewValidationError("Username cannot be empty"))
		return
	}
	user, err := h.svc.UpdateUsername(c.Request.Context(), currentUser(c), req.NewUsername)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Username updated successfully", "user": user})
}

// UpdatePassword 修改成功后会话失效，需要重新登录
func (h *UserHandler) UpdatePassword(c *gin.Context) {
	var req UpdatePasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(pkg.NewValidationError("Password cannot be empty"))
		return
	}
	if err := h.svc.UpdatePassword(c.Request.Context(), currentUser(c), req.OldPassword, req.NewPassword); err != nil {
		_ = c.Error(err)
		return
	}
	setTokenCookie(c, "", -1, h.secureCookie)
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}

func (h *UserHandler) ChangeProfile(c *gin.Context) {
	url, err := h.svc.ChangeProfile(c.Request.Context(), currentUser(c), optionalFile(c, "profilePic"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "profile picture updated successfully.", "profilePic": url})
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	var req DeleteUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(pkg.NewValidationError("Name doesn't match"))
		return
	}
	changes, err := h.svc.DeleteUser(c.Request.Context(), currentUser(c), req.UName)
	if err != nil {
		_ = c.Error(err)
		return
	}
	setTokenCookie(c, "", -1, h.secureCookie)
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully", "ownerChanges": changes})
}
