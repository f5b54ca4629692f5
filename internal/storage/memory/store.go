package memory

import (
	"context"
	"sort"
	"sync"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/storage"
)

// Store 纯内存存储实现，适用于开发与测试环境。
// 所有数据结构共用一把读写锁，配额检查与写入天然原子。
type Store struct {
	mu        sync.RWMutex
	inboxes   map[string]*domain.Inbox   // inboxID -> inbox
	byAddress map[string]string          // address -> inboxID
	messages  map[string][]string        // inboxID -> messageIDs（按接收顺序）
	byMessage map[string]*domain.Message // messageID -> message
}

// NewStore 构造内存存储
func NewStore() *Store {
	return &Store{
		inboxes:   make(map[string]*domain.Inbox),
		byAddress: make(map[string]string),
		messages:  make(map[string][]string),
		byMessage: make(map[string]*domain.Message),
	}
}

func (s *Store) Inbox() storage.InboxRepository     { return (*inboxRepo)(s) }
func (s *Store) Message() storage.MessageRepository { return (*messageRepo)(s) }

// Health 内存存储始终健康
func (s *Store) Health(_ context.Context) error { return nil }

// Close 释放全部数据
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inboxes = make(map[string]*domain.Inbox)
	s.byAddress = make(map[string]string)
	s.messages = make(map[string][]string)
	s.byMessage = make(map[string]*domain.Message)
	return nil
}

type inboxRepo Store

func (r *inboxRepo) Create(_ context.Context, inbox *domain.Inbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byAddress[inbox.Address]; exists {
		return storage.ErrDuplicateAddress
	}
	cp := *inbox
	r.inboxes[inbox.ID] = &cp
	r.byAddress[inbox.Address] = inbox.ID
	return nil
}

func (r *inboxRepo) GetByID(_ context.Context, id string) (*domain.Inbox, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inbox, ok := r.inboxes[id]
	if !ok {
		return nil, domain.ErrInboxNotFound
	}
	cp := *inbox
	return &cp, nil
}

func (r *inboxRepo) GetByAddress(_ context.Context, address string) (*domain.Inbox, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byAddress[address]
	if !ok {
		return nil, domain.ErrInboxNotFound
	}
	cp := *r.inboxes[id]
	return &cp, nil
}

func (r *inboxRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inbox, ok := r.inboxes[id]
	if !ok {
		return domain.ErrInboxNotFound
	}

	for _, msgID := range r.messages[id] {
		if msg, ok := r.byMessage[msgID]; ok {
			wipeMessage(msg)
			delete(r.byMessage, msgID)
		}
	}
	delete(r.messages, id)
	delete(r.byAddress, inbox.Address)
	delete(r.inboxes, id)
	return nil
}

func (r *inboxRepo) ListExpiries(_ context.Context) ([]storage.Expiry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]storage.Expiry, 0, len(r.inboxes))
	for _, inbox := range r.inboxes {
		out = append(out, storage.Expiry{InboxID: inbox.ID, ExpiresAt: inbox.ExpiresAt})
	}
	return out, nil
}

type messageRepo Store

func (r *messageRepo) Append(_ context.Context, inboxID string, msg *domain.Message, maxMessages int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inbox, ok := r.inboxes[inboxID]
	if !ok {
		return domain.ErrInboxNotFound
	}
	if inbox.MessageCount >= maxMessages {
		return domain.ErrQuotaExceeded
	}

	cp := *msg
	r.byMessage[msg.ID] = &cp
	r.messages[inboxID] = append(r.messages[inboxID], msg.ID)
	inbox.MessageCount++
	inbox.TotalBytes += msg.SizeBytes
	return nil
}

func (r *messageRepo) List(_ context.Context, inboxID string) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.inboxes[inboxID]; !ok {
		return nil, domain.ErrInboxNotFound
	}

	ids := r.messages[inboxID]
	out := make([]*domain.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := r.byMessage[id]; ok {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	return out, nil
}

func (r *messageRepo) Get(_ context.Context, messageID string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, ok := r.byMessage[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	cp := *msg
	return &cp, nil
}

func (r *messageRepo) MarkRead(_ context.Context, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.byMessage[messageID]
	if !ok {
		return domain.ErrMessageNotFound
	}
	msg.Status = domain.MessageStatusRead
	return nil
}

func (r *messageRepo) Delete(_ context.Context, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.byMessage[messageID]
	if !ok {
		return domain.ErrMessageNotFound
	}

	wipeMessage(msg)
	delete(r.byMessage, messageID)

	ids := r.messages[msg.InboxID]
	for i, id := range ids {
		if id == messageID {
			r.messages[msg.InboxID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if inbox, ok := r.inboxes[msg.InboxID]; ok && inbox.MessageCount > 0 {
		inbox.MessageCount--
		inbox.TotalBytes -= msg.SizeBytes
	}
	return nil
}

// wipeMessage 删除前覆写密文，缩短敏感数据在内存中的存活时间
func wipeMessage(msg *domain.Message) {
	for _, b := range [][]byte{
		msg.TextCiphertext, msg.HTMLCiphertext, msg.RawCiphertext,
		msg.TextNonce, msg.HTMLNonce, msg.RawNonce,
	} {
		for i := range b {
			b[i] = 0
		}
	}
	for _, att := range msg.Attachments {
		for i := range att.Ciphertext {
			att.Ciphertext[i] = 0
		}
	}
}
