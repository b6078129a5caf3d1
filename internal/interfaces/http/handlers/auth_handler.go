package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"stelgent-web/internal/application"
	"stelgent-web/internal/domain/models"
	"stelgent-web/internal/interfaces/http/middleware"
)

// AuthHandler 钱包登录与用户设置
type AuthHandler struct {
	userService *application.UserService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(userService *application.UserService) *AuthHandler {
	return &AuthHandler{userService: userService}
}

type walletConnectRequest struct {
	PublicKey string `json:"public_key" binding:"required"`
}

type walletVerifyRequest struct {
	PublicKey string `json:"public_key" binding:"required"`
	Signature string `json:"signature"`
	Message   string `json:"message"`
}

type openAISettingsRequest struct {
	OpenAIAPIKey *string `json:"openai_api_key"`
}

// HandleWalletConnect 用钱包公钥登录，返回的 token 就是公钥本身
func (h *AuthHandler) HandleWalletConnect(c *gin.Context) {
	var req walletConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.userService.Connect(c.Request.Context(), req.PublicKey)
	if err != nil {
		if errors.Is(err, models.ErrInvalidPublicKey) || errors.Is(err, models.ErrUnauthenticated) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Stellar public key"})
			return
		}
		respondError(c, err, "钱包登录")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": user.StellarPublicKey,
		"user":  user,
	})
}

// HandleWalletVerify 只校验公钥格式
func (h *AuthHandler) HandleWalletVerify(c *gin.Context) {
	var req walletVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	key, err := h.userService.VerifyPublicKey(req.PublicKey)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Stellar public key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Public key format is valid (signature verification not implemented).",
		"public_key": key,
	})
}

// HandleMe 返回当前用户
func (h *AuthHandler) HandleMe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": middleware.CurrentUser(c)})
}

// HandleOpenAISettings 保存当前用户的 OpenAI API Key
func (h *AuthHandler) HandleOpenAISettings(c *gin.Context) {
	var req openAISettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.userService.SetOpenAIKey(c.Request.Context(), middleware.CurrentUser(c).ID, req.OpenAIAPIKey)
	if err != nil {
		respondError(c, err, "保存设置")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "OpenAI API key updated",
		"user":    user,
	})
}
