// Package middleware holds the gin middleware shared by all routes.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stelgent-web/internal/domain/models"
	"stelgent-web/pkg/logger"
)

const (
	// RequestIDKey 是请求 ID 在 gin.Context 中的键
	RequestIDKey = "RequestID"
	// UserKey 是已认证用户在 gin.Context 中的键
	UserKey = "User"

	requestIDHeader = "X-Request-ID"
)

// RequestID 为每个请求分配 ID，沿用客户端传入的 X-Request-ID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// Logger 记录每个请求的方法、路径、状态码与耗时
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", c.GetString(RequestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("请求失败", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("请求被拒绝", fields...)
		default:
			logger.Info("请求完成", fields...)
		}
	}
}

// Recovery 捕获 panic，记录日志并返回 500
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("请求处理发生 panic",
			zap.String("request_id", c.GetString(RequestIDKey)),
			zap.Any("panic", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	})
}

// Authenticator 把钱包公钥解析为用户
type Authenticator interface {
	Authenticate(ctx context.Context, publicKey string) (*models.User, error)
}

// Auth 要求请求携带钱包公钥：X-Public-Key 头，或 Authorization: <scheme> <key>。
// allowQueryToken 为 true 时也接受 ?token=（浏览器的 websocket 无法设置请求头）。
func Auth(users Authenticator, allowQueryToken bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := PublicKeyFromRequest(c.Request, allowQueryToken)
		if key == "" {
			unauthorized(c, models.ErrUnauthenticated.Error())
			return
		}

		user, err := users.Authenticate(c.Request.Context(), key)
		switch {
		case err == nil:
			c.Set(UserKey, user)
			c.Next()
		case errors.Is(err, models.ErrInvalidPublicKey):
			unauthorized(c, "Invalid Stellar public key")
		case errors.Is(err, models.ErrUnauthenticated):
			unauthorized(c, "User not found for this wallet")
		default:
			logger.Error("认证失败",
				zap.String("request_id", c.GetString(RequestIDKey)),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// PublicKeyFromRequest 提取请求中的钱包公钥，没有时返回空串
func PublicKeyFromRequest(r *http.Request, allowQueryToken bool) string {
	if key := strings.TrimSpace(r.Header.Get("X-Public-Key")); key != "" {
		return key
	}
	if parts := strings.Fields(r.Header.Get("Authorization")); len(parts) == 2 {
		return parts[1]
	}
	if allowQueryToken {
		return strings.TrimSpace(r.URL.Query().Get("token"))
	}
	return ""
}

// CurrentUser 返回 Auth 写入的用户
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(UserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}
