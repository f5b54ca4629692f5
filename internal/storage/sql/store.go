package sql

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/storage"
)

const (
	readAttempts = 3
	readBackoff  = 50 * time.Millisecond
)

// readWithRetry 对幂等读做有限次退避重试。
// 未命中与上下文取消不重试；写入路径不经过这里。
func readWithRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < readAttempts; attempt++ {
		if err = op(); err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt+1) * readBackoff):
		}
	}
	return err
}

// Store 基于 GORM 的关系型存储实现（PostgreSQL / MySQL）
type Store struct {
	db *gorm.DB
}

// NewStore 构造SQL存储
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Inbox() storage.InboxRepository     { return &inboxRepo{db: s.db} }
func (s *Store) Message() storage.MessageRepository { return &messageRepo{db: s.db} }

// Health 检查数据库连通性
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭连接池
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type inboxRepo struct {
	db *gorm.DB
}

func (r *inboxRepo) Create(ctx context.Context, inbox *domain.Inbox) error {
	err := r.db.WithContext(ctx).Create(inbox).Error
	if err != nil && isDuplicateErr(err) {
		return storage.ErrDuplicateAddress
	}
	return err
}

func (r *inboxRepo) GetByID(ctx context.Context, id string) (*domain.Inbox, error) {
	var inbox domain.Inbox
	err := readWithRetry(ctx, func() error {
		return r.db.WithContext(ctx).First(&inbox, "id = ?", id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInboxNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inbox, nil
}

func (r *inboxRepo) GetByAddress(ctx context.Context, address string) (*domain.Inbox, error) {
	var inbox domain.Inbox
	err := readWithRetry(ctx, func() error {
		return r.db.WithContext(ctx).First(&inbox, "address = ?", address).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInboxNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inbox, nil
}

func (r *inboxRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inbox domain.Inbox
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&inbox, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrInboxNotFound
			}
			return err
		}

		sub := tx.Model(&domain.Message{}).Select("id").Where("inbox_id = ?", id)
		if err := tx.Where("message_id IN (?)", sub).
			Delete(&domain.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("inbox_id = ?", id).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Inbox{}, "id = ?", id).Error
	})
}

func (r *inboxRepo) ListExpiries(ctx context.Context) ([]storage.Expiry, error) {
	var inboxes []domain.Inbox
	err := readWithRetry(ctx, func() error {
		inboxes = inboxes[:0]
		return r.db.WithContext(ctx).
			Select("id", "expires_at").
			Find(&inboxes).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]storage.Expiry, 0, len(inboxes))
	for _, inbox := range inboxes {
		out = append(out, storage.Expiry{InboxID: inbox.ID, ExpiresAt: inbox.ExpiresAt})
	}
	return out, nil
}

type messageRepo struct {
	db *gorm.DB
}

// Append 在事务内用行锁完成配额检查与写入，保证并发投递不超额
func (r *messageRepo) Append(ctx context.Context, inboxID string, msg *domain.Message, maxMessages int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inbox domain.Inbox
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&inbox, "id = ?", inboxID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrInboxNotFound
			}
			return err
		}
		if inbox.MessageCount >= maxMessages {
			return domain.ErrQuotaExceeded
		}

		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&inbox).Updates(map[string]interface{}{
			"message_count": gorm.Expr("message_count + 1"),
			"total_bytes":   gorm.Expr("total_bytes + ?", msg.SizeBytes),
		}).Error
	})
}

func (r *messageRepo) List(ctx context.Context, inboxID string) ([]*domain.Message, error) {
	var count int64
	err := readWithRetry(ctx, func() error {
		return r.db.WithContext(ctx).Model(&domain.Inbox{}).
			Where("id = ?", inboxID).Count(&count).Error
	})
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, domain.ErrInboxNotFound
	}

	var msgs []*domain.Message
	err = readWithRetry(ctx, func() error {
		msgs = msgs[:0]
		return r.db.WithContext(ctx).
			Where("inbox_id = ?", inboxID).
			Order("received_at DESC").
			Find(&msgs).Error
	})
	return msgs, err
}

func (r *messageRepo) Get(ctx context.Context, messageID string) (*domain.Message, error) {
	var msg domain.Message
	err := readWithRetry(ctx, func() error {
		return r.db.WithContext(ctx).
			Preload("Attachments").
			First(&msg, "id = ?", messageID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) MarkRead(ctx context.Context, messageID string) error {
	res := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ?", messageID).
		Update("status", domain.MessageStatusRead)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *messageRepo) Delete(ctx context.Context, messageID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg domain.Message
		if err := tx.First(&msg, "id = ?", messageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrMessageNotFound
			}
			return err
		}

		if err := tx.Where("message_id = ?", messageID).
			Delete(&domain.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&domain.Message{}, "id = ?", messageID).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Inbox{}).
			Where("id = ? AND message_count > 0", msg.InboxID).
			Updates(map[string]interface{}{
				"message_count": gorm.Expr("message_count - 1"),
				"total_bytes":   gorm.Expr("total_bytes - ?", msg.SizeBytes),
			}).Error
	})
}

// isDuplicateErr 识别唯一键冲突，兼容 PostgreSQL 与 MySQL 的报错文案
func isDuplicateErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "Duplicate entry")
}
