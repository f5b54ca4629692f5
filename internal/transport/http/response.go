package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tempbox/backend/internal/domain"
)

// errorBody 统一的错误响应结构
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{Code: code, Message: message}})
}

// writeDomainError 把领域错误映射为HTTP状态码
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInboxNotFound):
		writeError(c, http.StatusNotFound, "not_found", "inbox not found")
	case errors.Is(err, domain.ErrMessageNotFound):
		writeError(c, http.StatusNotFound, "not_found", "message not found")
	case errors.Is(err, domain.ErrInvalidToken):
		writeError(c, http.StatusUnauthorized, "unauthorized", "invalid access token")
	case errors.Is(err, domain.ErrQuotaExceeded):
		writeError(c, http.StatusConflict, "quota_exceeded", "inbox quota exceeded")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(c, http.StatusTooManyRequests, "rate_limited", "too many requests")
	case errors.Is(err, domain.ErrDecryptFailed):
		writeError(c, http.StatusInternalServerError, "internal", "message content unavailable")
	default:
		writeError(c, http.StatusInternalServerError, "internal", "internal server error")
	}
}
