package controllers

import (
	"net/http"
	"strings"

	"prago-api/services"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	accounts *services.AccountService
}

func NewAuthController(accounts *services.AccountService) *AuthController {
	return &AuthController{accounts: accounts}
}

type otpRequest struct {
	Identifier string `json:"identifier" binding:"required"`
}

type otpVerifyRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	OTP        string `json:"otp" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required"`
}

func (r loginRequest) login() string {
	for _, v := range []string{r.Username, r.Email, r.Phone} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type refreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

type roleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (h *AuthController) RequestOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.accounts.RequestOTP(c.Request.Context(), req.Identifier); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OTP sent successfully."})
}

func (h *AuthController) VerifyOTP(c *gin.Context) {
	var req otpVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.accounts.VerifyOTP(c.Request.Context(), req.Identifier, req.OTP)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AuthController) Signup(c *gin.Context) {
	var req services.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.accounts.Signup(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	login := req.login()
	if login == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username, email or phone is required."})
		return
	}
	res, err := h.accounts.Login(c.Request.Context(), login, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AuthController) Google(c *gin.Context) {
	var req services.GoogleProfile
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.accounts.Google(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AuthController) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	pair, err := h.accounts.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h *AuthController) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	me, err := h.accounts.Me(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, me)
}

func (h *AuthController) CheckUsername(c *gin.Context) {
	if err := h.accounts.CheckUsername(c.Request.Context(), c.Query("username")); err != nil {
		if services.IsKind(err, services.KindValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"available": false, "error": err.Error()})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": true, "message": "Username is available."})
}

func (h *AuthController) RequestPasswordReset(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.accounts.RequestPasswordReset(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset link sent to your email."})
}

func (h *AuthController) ResetPassword(c *gin.Context) {
	var req services.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.accounts.ResetPassword(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset successfully."})
}

func (h *AuthController) GrantRole(c *gin.Context) {
	userID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	roles, err := h.accounts.GrantRole(c.Request.Context(), userID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "roles": roles})
}

func (h *AuthController) RevokeRole(c *gin.Context) {
	userID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	roles, err := h.accounts.RevokeRole(c.Request.Context(), userID, c.Param("role"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "roles": roles})
}
