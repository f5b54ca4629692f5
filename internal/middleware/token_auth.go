package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/service"
)

// ContextInboxKey 鉴权通过后邮箱对象在 gin 上下文中的键
const ContextInboxKey = "inbox"

// InboxAuth 邮箱访问令牌鉴权。
// 令牌缺失或格式非法返回401；
// 令牌与邮箱不匹配返回404，响应与邮箱不存在完全一致，
// 避免通过错误码探测邮箱是否存在。
func InboxAuth(inboxes *service.InboxService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "unauthorized", "message": "missing access token"},
			})
			return
		}

		inboxID := c.Param("inboxID")
		inbox, err := inboxes.Authorize(c.Request.Context(), inboxID, token)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidToken) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": gin.H{"code": "unauthorized", "message": "invalid access token"},
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error": gin.H{"code": "not_found", "message": "inbox not found"},
			})
			return
		}

		c.Set(ContextInboxKey, inbox)
		c.Next()
	}
}

// InboxFromContext 取出鉴权通过的邮箱
func InboxFromContext(c *gin.Context) *domain.Inbox {
	v, ok := c.Get(ContextInboxKey)
	if !ok {
		return nil
	}
	inbox, _ := v.(*domain.Inbox)
	return inbox
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
