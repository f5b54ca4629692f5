package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/middleware"
	"tempbox/backend/internal/monitoring"
	"tempbox/backend/internal/service"
	"tempbox/backend/internal/websocket"
)

// Handler HTTP接口层
type Handler struct {
	cfg      config.InboxConfig
	inboxes  *service.InboxService
	messages *service.MessageService
	hub      *websocket.Hub // 可为 nil
	logger   *zap.Logger
}

// NewHandler 构造接口层
func NewHandler(cfg config.InboxConfig, inboxes *service.InboxService,
	messages *service.MessageService, hub *websocket.Hub, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		inboxes:  inboxes,
		messages: messages,
		hub:      hub,
		logger:   logger,
	}
}

type createInboxRequest struct {
	TTLSeconds int64 `json:"ttl_seconds"`
}

type createInboxResponse struct {
	InboxID   string    `json:"inbox_id"`
	Address   string    `json:"address"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateInbox POST /api/v1/inboxes
func (h *Handler) CreateInbox(c *gin.Context) {
	var req createInboxRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "bad_request", "invalid request body")
			return
		}
	}
	if req.TTLSeconds < 0 {
		writeError(c, http.StatusBadRequest, "bad_request", "ttl_seconds must not be negative")
		return
	}

	res, err := h.inboxes.Create(c.Request.Context(), time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.logger.Error("create inbox failed", zap.Error(err))
		writeDomainError(c, err)
		return
	}

	monitoring.InboxesCreated.Inc()
	c.JSON(http.StatusCreated, createInboxResponse{
		InboxID:   res.Inbox.ID,
		Address:   res.Inbox.Address,
		Token:     res.Token,
		CreatedAt: res.Inbox.CreatedAt,
		ExpiresAt: res.Inbox.ExpiresAt,
	})
}

type inboxResponse struct {
	InboxID      string    `json:"inbox_id"`
	Address      string    `json:"address"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	MessageCount int       `json:"message_count"`
	TotalBytes   int64     `json:"total_bytes"`
}

// GetInbox GET /api/v1/inboxes/:inboxID
func (h *Handler) GetInbox(c *gin.Context) {
	inbox := middleware.InboxFromContext(c)
	c.JSON(http.StatusOK, inboxResponse{
		InboxID:      inbox.ID,
		Address:      inbox.Address,
		CreatedAt:    inbox.CreatedAt,
		ExpiresAt:    inbox.ExpiresAt,
		MessageCount: inbox.MessageCount,
		TotalBytes:   inbox.TotalBytes,
	})
}

// DeleteInbox DELETE /api/v1/inboxes/:inboxID
func (h *Handler) DeleteInbox(c *gin.Context) {
	inbox := middleware.InboxFromContext(c)
	if err := h.inboxes.Delete(c.Request.Context(), inbox.ID); err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMessages GET /api/v1/inboxes/:inboxID/messages
func (h *Handler) ListMessages(c *gin.Context) {
	inbox := middleware.InboxFromContext(c)
	previews, err := h.messages.List(c.Request.Context(), inbox.ID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": previews, "count": len(previews)})
}

type attachmentMeta struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type messageResponse struct {
	ID             string           `json:"id"`
	InboxID        string           `json:"inbox_id"`
	From           string           `json:"from"`
	Subject        string           `json:"subject"`
	Text           string           `json:"text"`
	HTML           string           `json:"html"`
	SizeBytes      int64            `json:"size_bytes"`
	ReceivedAt     time.Time        `json:"received_at"`
	Read           bool             `json:"read"`
	HasAttachments bool             `json:"has_attachments"`
	Attachments    []attachmentMeta `json:"attachments"`
}

// GetMessage GET /api/v1/inboxes/:inboxID/messages/:messageID
func (h *Handler) GetMessage(c *gin.Context) {
	msg, ok := h.ownedMessage(c)
	if !ok {
		return
	}

	full, err := h.messages.Get(c.Request.Context(), msg.ID)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	attachments := make([]attachmentMeta, 0, len(full.Attachments))
	for _, att := range full.Attachments {
		attachments = append(attachments, attachmentMeta{
			ID:          att.ID,
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        att.Size,
		})
	}
	c.JSON(http.StatusOK, messageResponse{
		ID:             full.ID,
		InboxID:        full.InboxID,
		From:           full.From,
		Subject:        full.Subject,
		Text:           full.Text,
		HTML:           full.HTML,
		SizeBytes:      full.SizeBytes,
		ReceivedAt:     full.ReceivedAt,
		Read:           full.Status == domain.MessageStatusRead,
		HasAttachments: full.HasAttachments,
		Attachments:    attachments,
	})
}

// GetRawMessage GET /api/v1/inboxes/:inboxID/messages/:messageID/raw
func (h *Handler) GetRawMessage(c *gin.Context) {
	msg, ok := h.ownedMessage(c)
	if !ok {
		return
	}
	raw, err := h.messages.GetRaw(c.Request.Context(), msg.ID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.Data(http.StatusOK, "message/rfc822", raw)
}

// GetAttachment GET /api/v1/inboxes/:inboxID/messages/:messageID/attachments/:attachmentID
func (h *Handler) GetAttachment(c *gin.Context) {
	msg, ok := h.ownedMessage(c)
	if !ok {
		return
	}
	att, err := h.messages.GetAttachment(c.Request.Context(), msg.ID, c.Param("attachmentID"))
	if err != nil {
		writeDomainError(c, err)
		return
	}

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(att.Filename, `"`, "")+`"`)
	c.Data(http.StatusOK, contentType, att.Content)
}

// DeleteMessage DELETE /api/v1/inboxes/:inboxID/messages/:messageID
func (h *Handler) DeleteMessage(c *gin.Context) {
	msg, ok := h.ownedMessage(c)
	if !ok {
		return
	}
	if err := h.messages.Delete(c.Request.Context(), msg.ID); err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Subscribe GET /api/v1/inboxes/:inboxID/ws
// 浏览器WebSocket无法携带请求头，令牌放在 token 查询参数。
func (h *Handler) Subscribe(c *gin.Context) {
	if h.hub == nil {
		writeError(c, http.StatusNotImplemented, "not_implemented", "realtime updates disabled")
		return
	}

	token := c.Query("token")
	if token == "" {
		writeError(c, http.StatusUnauthorized, "unauthorized", "missing access token")
		return
	}
	inbox, err := h.inboxes.Authorize(c.Request.Context(), c.Param("inboxID"), token)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	if err := h.hub.Subscribe(c.Writer, c.Request, inbox.ID); err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
	}
}

// ownedMessage 校验邮件归属于鉴权通过的邮箱。
// 归属不符与不存在返回完全相同的404。
func (h *Handler) ownedMessage(c *gin.Context) (*domain.Message, bool) {
	inbox := middleware.InboxFromContext(c)
	msg, err := h.messages.Peek(c.Request.Context(), c.Param("messageID"))
	if err != nil || msg.InboxID != inbox.ID {
		writeError(c, http.StatusNotFound, "not_found", "message not found")
		return nil, false
	}
	return msg, true
}
