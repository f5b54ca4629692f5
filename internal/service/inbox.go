package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/crypto"
	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/storage"
	redisstore "tempbox/backend/internal/storage/redis"
	"tempbox/backend/internal/ttl"
)

// 地址生成冲突时的最大重试次数
const maxAddressAttempts = 5

// CreateInboxResult 创建邮箱的返回值。
// Token 明文只在这里出现一次，之后无法再次获取。
type CreateInboxResult struct {
	Inbox *domain.Inbox
	Token string
}

// InboxService 邮箱生命周期服务
type InboxService struct {
	cfg    config.InboxConfig
	store  storage.Store
	tokens *crypto.TokenManager
	index  *ttl.Index
	cache  *redisstore.InboxCache // 可为 nil
	logger *zap.Logger
}

// NewInboxService 构造邮箱服务
func NewInboxService(cfg config.InboxConfig, store storage.Store, tokens *crypto.TokenManager,
	index *ttl.Index, cache *redisstore.InboxCache, logger *zap.Logger) *InboxService {
	return &InboxService{
		cfg:    cfg,
		store:  store,
		tokens: tokens,
		index:  index,
		cache:  cache,
		logger: logger,
	}
}

// Create 创建一个随机地址的临时邮箱。
// requestedTTL 超出 [0, MaxTTL] 时收敛到默认值/上限。
func (s *InboxService) Create(ctx context.Context, requestedTTL time.Duration) (*CreateInboxResult, error) {
	ttlDur := requestedTTL
	if ttlDur <= 0 {
		ttlDur = s.cfg.DefaultTTL
	}
	if ttlDur > s.cfg.MaxTTL {
		ttlDur = s.cfg.MaxTTL
	}

	now := time.Now()
	expiresAt := now.Add(ttlDur)

	for attempt := 0; attempt < maxAddressAttempts; attempt++ {
		local, err := crypto.RandomString(s.cfg.AddressLength)
		if err != nil {
			return nil, err
		}
		localPart := s.cfg.AddressPrefix + local
		address := localPart + "@" + s.cfg.Domain

		inboxID := uuid.NewString()
		token, err := s.tokens.Generate(inboxID, address, expiresAt)
		if err != nil {
			return nil, err
		}
		tokenHash, err := crypto.HashToken(token)
		if err != nil {
			return nil, err
		}

		inbox := &domain.Inbox{
			ID:        inboxID,
			Address:   address,
			LocalPart: localPart,
			Domain:    s.cfg.Domain,
			TokenHash: tokenHash,
			CreatedAt: now,
			ExpiresAt: expiresAt,
			Status:    domain.InboxStatusActive,
		}

		err = s.store.Inbox().Create(ctx, inbox)
		if err == storage.ErrDuplicateAddress {
			s.logger.Warn("address collision, retrying",
				zap.String("address", address), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create inbox: %w", err)
		}

		s.index.Register(inboxID, expiresAt)
		s.cacheSet(ctx, inbox)
		s.logger.Info("inbox created",
			zap.String("inbox_id", inboxID),
			zap.String("address", address),
			zap.Time("expires_at", expiresAt))
		return &CreateInboxResult{Inbox: inbox, Token: token}, nil
	}
	return nil, fmt.Errorf("failed to allocate address after %d attempts", maxAddressAttempts)
}

// Get 查询邮箱，已过期的邮箱视同不存在
func (s *InboxService) Get(ctx context.Context, id string) (*domain.Inbox, error) {
	inbox, err := s.store.Inbox().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inbox.Expired(time.Now()) {
		return nil, domain.ErrInboxNotFound
	}
	return inbox, nil
}

// Authorize 校验访问令牌并返回邮箱。
// 令牌缺失或格式非法返回 ErrInvalidToken；
// 令牌与邮箱不匹配、或令牌已随邮箱过期，
// 返回 ErrInboxNotFound，与邮箱不存在不可区分。
func (s *InboxService) Authorize(ctx context.Context, inboxID, token string) (*domain.Inbox, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.InboxID != inboxID {
		return nil, domain.ErrInboxNotFound
	}

	inbox, err := s.Get(ctx, inboxID)
	if err != nil {
		return nil, err
	}
	if !crypto.CompareToken(inbox.TokenHash, token) {
		return nil, domain.ErrInboxNotFound
	}
	return inbox, nil
}

// Delete 删除邮箱及其全部邮件
func (s *InboxService) Delete(ctx context.Context, id string) error {
	inbox, err := s.store.Inbox().GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Inbox().Delete(ctx, id); err != nil {
		return err
	}
	s.cacheDelete(ctx, inbox.Address)
	s.logger.Info("inbox deleted", zap.String("inbox_id", id))
	return nil
}

// ResolveRecipient 按收件地址解析活跃邮箱，供SMTP收件路径使用
func (s *InboxService) ResolveRecipient(ctx context.Context, address string) (*domain.Inbox, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	at := strings.LastIndex(address, "@")
	if at <= 0 || at == len(address)-1 {
		return nil, domain.ErrInvalidAddress
	}
	if address[at+1:] != s.cfg.Domain {
		return nil, domain.ErrInboxNotFound
	}

	if inbox := s.cacheGet(ctx, address); inbox != nil {
		if inbox.Expired(time.Now()) {
			return nil, domain.ErrInboxNotFound
		}
		return inbox, nil
	}

	inbox, err := s.store.Inbox().GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if inbox.Expired(time.Now()) {
		return nil, domain.ErrInboxNotFound
	}
	s.cacheSet(ctx, inbox)
	return inbox, nil
}

// 缓存操作均为尽力而为，失败只记日志不影响主流程

func (s *InboxService) cacheGet(ctx context.Context, address string) *domain.Inbox {
	if s.cache == nil {
		return nil
	}
	inbox, err := s.cache.Get(ctx, address)
	if err != nil {
		s.logger.Warn("inbox cache get failed", zap.Error(err))
		return nil
	}
	return inbox
}

func (s *InboxService) cacheSet(ctx context.Context, inbox *domain.Inbox) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, inbox); err != nil {
		s.logger.Warn("inbox cache set failed", zap.Error(err))
	}
}

func (s *InboxService) cacheDelete(ctx context.Context, address string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, address); err != nil {
		s.logger.Warn("inbox cache delete failed", zap.Error(err))
	}
}
