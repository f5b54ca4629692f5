package storage

import (
	"context"
	"errors"
	"time"

	"tempbox/backend/internal/domain"
)

// ErrDuplicateAddress 地址已被占用，调用方应换地址重试
var ErrDuplicateAddress = errors.New("address already exists")

// Expiry 存储中一个邮箱的过期登记，用于启动时重建过期索引
type Expiry struct {
	InboxID   string
	ExpiresAt time.Time
}

// Store 存储后端聚合接口
type Store interface {
	Inbox() InboxRepository
	Message() MessageRepository
	Health(ctx context.Context) error
	Close() error
}

// InboxRepository 邮箱存储接口
type InboxRepository interface {
	// Create 创建邮箱，地址冲突时返回 ErrDuplicateAddress
	Create(ctx context.Context, inbox *domain.Inbox) error
	// GetByID 按ID查询，不存在返回 ErrInboxNotFound
	GetByID(ctx context.Context, id string) (*domain.Inbox, error)
	// GetByAddress 按地址查询，不存在返回 ErrInboxNotFound
	GetByAddress(ctx context.Context, address string) (*domain.Inbox, error)
	// Delete 删除邮箱并级联删除其全部邮件与附件
	Delete(ctx context.Context, id string) error
	// ListExpiries 列出全部邮箱的过期登记
	ListExpiries(ctx context.Context) ([]Expiry, error)
}

// MessageRepository 邮件存储接口
type MessageRepository interface {
	// Append 在配额内追加一封邮件。配额检查与写入是原子的：
	// 并发追加时最多只有配额内数量的写入成功，超出返回 ErrQuotaExceeded。
	Append(ctx context.Context, inboxID string, msg *domain.Message, maxMessages int) error
	// List 按接收时间倒序列出邮箱内的邮件（不含附件内容）
	List(ctx context.Context, inboxID string) ([]*domain.Message, error)
	// Get 按ID查询邮件及其附件，不存在返回 ErrMessageNotFound
	Get(ctx context.Context, messageID string) (*domain.Message, error)
	// MarkRead 标记邮件为已读
	MarkRead(ctx context.Context, messageID string) error
	// Delete 删除单封邮件及其附件
	Delete(ctx context.Context, messageID string) error
}
