package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/crypto"
	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/sanitize"
	"tempbox/backend/internal/smtp"
	"tempbox/backend/internal/storage"
)

// 列表接口返回的正文预览长度（按字符计）
const previewRunes = 128

// Notifier 新邮件事件的订阅方
type Notifier interface {
	NotifyNewMessage(inboxID string, msg *domain.Message)
}

// MessagePreview 列表接口使用的轻量视图，不含完整正文
type MessagePreview struct {
	ID             string    `json:"id"`
	From           string    `json:"from"`
	Subject        string    `json:"subject"`
	Preview        string    `json:"preview"`
	SizeBytes      int64     `json:"size_bytes"`
	ReceivedAt     time.Time `json:"received_at"`
	Read           bool      `json:"read"`
	HasAttachments bool      `json:"has_attachments"`
}

// MessageService 邮件读写服务：投递时消毒并加密，读取时解密。
type MessageService struct {
	cfg       config.InboxConfig
	store     storage.Store
	codec     *crypto.Codec
	sanitizer *sanitize.Sanitizer
	inboxes   *InboxService
	notifier  Notifier // 可为 nil
	logger    *zap.Logger
}

// NewMessageService 构造邮件服务
func NewMessageService(cfg config.InboxConfig, store storage.Store, codec *crypto.Codec,
	sanitizer *sanitize.Sanitizer, inboxes *InboxService, notifier Notifier, logger *zap.Logger) *MessageService {
	return &MessageService{
		cfg:       cfg,
		store:     store,
		codec:     codec,
		sanitizer: sanitizer,
		inboxes:   inboxes,
		notifier:  notifier,
		logger:    logger,
	}
}

// ResolveRecipient 实现收件路径的地址解析
func (s *MessageService) ResolveRecipient(ctx context.Context, address string) (*domain.Inbox, error) {
	return s.inboxes.ResolveRecipient(ctx, address)
}

// Deliver 投递一封已解析的邮件：消毒、加密、在配额内落盘。
func (s *MessageService) Deliver(ctx context.Context, in *smtp.DeliveryInput) error {
	if int64(len(in.Raw)) > s.cfg.MaxMessageBytes {
		return domain.ErrMessageTooLarge
	}

	cleanHTML := s.sanitizer.HTML(in.Parsed.HTML)

	msg := &domain.Message{
		ID:             uuid.NewString(),
		InboxID:        in.InboxID,
		From:           in.Sender,
		Subject:        in.Parsed.Subject,
		SizeBytes:      int64(len(in.Raw)),
		ReceivedAt:     in.ReceivedAt,
		Status:         domain.MessageStatusReceived,
		HasAttachments: len(in.Parsed.Attachments) > 0,
	}

	var err error
	if msg.TextCiphertext, msg.TextNonce, err = s.codec.EncryptString(in.Parsed.Text); err != nil {
		return fmt.Errorf("encrypt text: %w", err)
	}
	if msg.HTMLCiphertext, msg.HTMLNonce, err = s.codec.EncryptString(cleanHTML); err != nil {
		return fmt.Errorf("encrypt html: %w", err)
	}
	if msg.RawCiphertext, msg.RawNonce, err = s.codec.Encrypt(in.Raw); err != nil {
		return fmt.Errorf("encrypt raw: %w", err)
	}

	for _, att := range in.Parsed.Attachments {
		ciphertext, nonce, err := s.codec.Encrypt(att.Content)
		if err != nil {
			return fmt.Errorf("encrypt attachment: %w", err)
		}
		msg.Attachments = append(msg.Attachments, &domain.Attachment{
			ID:          uuid.NewString(),
			MessageID:   msg.ID,
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        int64(len(att.Content)),
			Ciphertext:  ciphertext,
			Nonce:       nonce,
		})
	}

	if err := s.store.Message().Append(ctx, in.InboxID, msg, s.cfg.MaxMessages); err != nil {
		return err
	}

	if s.notifier != nil {
		s.notifier.NotifyNewMessage(in.InboxID, msg)
	}
	s.logger.Debug("message stored",
		zap.String("inbox_id", in.InboxID),
		zap.String("message_id", msg.ID),
		zap.Int64("bytes", msg.SizeBytes))
	return nil
}

// List 列出邮箱内的邮件预览，按接收时间倒序
func (s *MessageService) List(ctx context.Context, inboxID string) ([]*MessagePreview, error) {
	msgs, err := s.store.Message().List(ctx, inboxID)
	if err != nil {
		return nil, err
	}

	out := make([]*MessagePreview, 0, len(msgs))
	for _, msg := range msgs {
		preview := ""
		text, err := s.codec.DecryptString(msg.TextCiphertext, msg.TextNonce)
		if err != nil {
			s.logger.Error("preview decrypt failed",
				zap.String("message_id", msg.ID), zap.Error(err))
		} else {
			preview = truncateRunes(text, previewRunes)
		}
		out = append(out, &MessagePreview{
			ID:             msg.ID,
			From:           msg.From,
			Subject:        msg.Subject,
			Preview:        preview,
			SizeBytes:      msg.SizeBytes,
			ReceivedAt:     msg.ReceivedAt,
			Read:           msg.Status == domain.MessageStatusRead,
			HasAttachments: msg.HasAttachments,
		})
	}
	return out, nil
}

// Peek 查询邮件但不解密不标记已读，用于归属校验
func (s *MessageService) Peek(ctx context.Context, messageID string) (*domain.Message, error) {
	return s.store.Message().Get(ctx, messageID)
}

// Get 读取完整邮件：解密正文并标记为已读。
// 解密失败向上传播 ErrDecryptFailed，绝不返回可疑明文。
func (s *MessageService) Get(ctx context.Context, messageID string) (*domain.Message, error) {
	msg, err := s.store.Message().Get(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if msg.Text, err = s.codec.DecryptString(msg.TextCiphertext, msg.TextNonce); err != nil {
		return nil, err
	}
	if msg.HTML, err = s.codec.DecryptString(msg.HTMLCiphertext, msg.HTMLNonce); err != nil {
		return nil, err
	}

	if msg.Status == domain.MessageStatusReceived {
		if err := s.store.Message().MarkRead(ctx, messageID); err != nil {
			s.logger.Warn("mark read failed",
				zap.String("message_id", messageID), zap.Error(err))
		} else {
			msg.Status = domain.MessageStatusRead
		}
	}
	return msg, nil
}

// GetRaw 读取解密后的邮件原文
func (s *MessageService) GetRaw(ctx context.Context, messageID string) ([]byte, error) {
	msg, err := s.store.Message().Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return s.codec.Decrypt(msg.RawCiphertext, msg.RawNonce)
}

// GetAttachment 读取并解密单个附件
func (s *MessageService) GetAttachment(ctx context.Context, messageID, attachmentID string) (*domain.Attachment, error) {
	msg, err := s.store.Message().Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	for _, att := range msg.Attachments {
		if att.ID == attachmentID {
			content, err := s.codec.Decrypt(att.Ciphertext, att.Nonce)
			if err != nil {
				return nil, err
			}
			att.Content = content
			return att, nil
		}
	}
	return nil, domain.ErrMessageNotFound
}

// Delete 删除单封邮件
func (s *MessageService) Delete(ctx context.Context, messageID string) error {
	return s.store.Message().Delete(ctx, messageID)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
