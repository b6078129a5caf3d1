package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stelgent-web/internal/domain/models"
	"stelgent-web/internal/interfaces/http/middleware"
	"stelgent-web/pkg/logger"
)

// statusFor 把领域错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidPath), errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNoEntryHTML):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrUnauthenticated), errors.Is(err, models.ErrInvalidPublicKey):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// respondError 按错误类型回复 {"error": ...}；未知错误只记录日志，不向客户端暴露细节
func respondError(c *gin.Context, err error, action string) {
	status := statusFor(err)
	requestID := c.GetString(middleware.RequestIDKey)

	if status == http.StatusInternalServerError {
		logger.Error(action+"失败",
			zap.String("request_id", requestID),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}

	logger.Debug(action+"被拒绝",
		zap.String("request_id", requestID),
		zap.Int("status", status),
		zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error()})
}

// badRequest 回复请求体解析错误
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
