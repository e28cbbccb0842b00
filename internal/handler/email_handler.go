package handler

import (
	"net/http"

	"commUnity/internal/pkg"
	"commUnity/internal/service"

	"github.com/gin-gonic/gin"
)

type EmailHandler struct {
	users    *service.UserService
	emailSvc *service.EmailService
}

type OtpVerifyReq struct {
	Email   string `json:"email" binding:"required"`
	Otp     string `json:"otp" binding:"required"`
	Purpose string `json:"purpose"`
}

type ResetPassReq struct {
	Email       string `json:"email" binding:"required"`
	Otp         string `json:"otp"`
	NewPassword string `json:"newPassword" binding:"required"`
}

func NewEmailHandler(users *service.UserService, emailSvc *service.EmailService) *EmailHandler {
	return &EmailHandler{users: users, emailSvc: emailSvc}
}

// OtpSent 注册前验证邮箱：已注册的邮箱不发送验证码
func (h *EmailHandler) OtpSent(c *gin.Context) {
	var req EmailReq
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(pkg.NewValidationError("Email is required"))
		return
	}
	ctx := c.Request.Context()
	exists, err := h.users.CheckEmail(ctx, req.Email)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if exists {
		c.JSON(http.StatusOK, gin.H{"exists": true, "message": "Email already exists"})
		return
	}
	if err = h.emailSvc.SendCode(ctx, service.PurposeRegister, req.Email); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": false, "otpSent": true, "message": "OTP sent to email"})
}

func (h *EmailHandler) OtpVerify(c *gin.Context) {
	var req OtpVerifyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c)
		return
	}
	ctx := c.Request.Context()

	if req.Purpose == service.PurposeReset {
		if err := h.users.VerifyReset(ctx, req.Email, req.Otp); err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "OTP verified"})
		return
	}

	ok, err := h.emailSvc.VerifyCode(ctx, service.PurposeRegister, req.Email, req.Otp)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !ok {
		_ = c.Error(pkg.NewValidationError("Invalid OTP"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OTP verified"})
}

func (h *EmailHandler) ReqPassReset(c *gin.Context) {
	var req EmailReq
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(pkg.NewValidationError("Email is required"))
		return
	}
	if err := h.users.RequestReset(c.Request.Context(), req.Email); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OTP sent to email"})
}

// ResetPass 带 otp 时先校验再重置；不带 otp 则要求之前已通过 /otp_verify
func (h *EmailHandler) ResetPass(c *gin.Context) {
	var req ResetPassReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c)
		return
	}
	ctx := c.Request.Context()
	if req.Otp != "" {
		if err := h.users.VerifyReset(ctx, req.Email, req.Otp); err != nil {
			_ = c.Error(err)
			return
		}
	}
	if err := h.users.ResetPassword(ctx, req.Email, req.NewPassword); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully"})
}
