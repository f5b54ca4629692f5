package smtp

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/monitoring"
)

// sessionState SMTP会话状态机
type sessionState int

const (
	stateGreeting sessionState = iota
	stateMailFrom
	stateRcptTo
)

// DeliveryInput 一次投递的输入
type DeliveryInput struct {
	InboxID    string
	Sender     string
	Parsed     *ParsedEmail
	Raw        []byte
	ReceivedAt time.Time
}

// Delivery 收件路径依赖的上层服务
type Delivery interface {
	// ResolveRecipient 按收件地址解析活跃邮箱，未知或已过期返回 ErrInboxNotFound
	ResolveRecipient(ctx context.Context, address string) (*domain.Inbox, error)
	// Deliver 投递一封邮件到目标邮箱
	Deliver(ctx context.Context, in *DeliveryInput) error
}

var (
	errUnknownRecipient = &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 1, 1},
		Message:      "mailbox unavailable",
	}
	errTooLarge = &smtp.SMTPError{
		Code:         552,
		EnhancedCode: smtp.EnhancedCode{5, 3, 4},
		Message:      "message size exceeds fixed maximum",
	}
	errQuotaFull = &smtp.SMTPError{
		Code:         552,
		EnhancedCode: smtp.EnhancedCode{5, 2, 2},
		Message:      "mailbox full",
	}
	errTransient = &smtp.SMTPError{
		Code:         451,
		EnhancedCode: smtp.EnhancedCode{4, 3, 0},
		Message:      "local error in processing, try again later",
	}
	errBadSequence = &smtp.SMTPError{
		Code:         503,
		EnhancedCode: smtp.EnhancedCode{5, 5, 1},
		Message:      "bad sequence of commands",
	}
	errTooManyRecipients = &smtp.SMTPError{
		Code:         452,
		EnhancedCode: smtp.EnhancedCode{4, 5, 3},
		Message:      "too many recipients",
	}
)

// Backend 收件端，为每个连接创建会话
type Backend struct {
	cfg      config.SMTPConfig
	maxBytes int64
	delivery Delivery
	limiter  *ConnectionLimiter
	logger   *zap.Logger
}

// NewBackend 构造收件端
func NewBackend(cfg config.SMTPConfig, maxBytes int64, delivery Delivery, logger *zap.Logger) *Backend {
	return &Backend{
		cfg:      cfg,
		maxBytes: maxBytes,
		delivery: delivery,
		limiter:  NewConnectionLimiter(cfg.MaxConnections, cfg.ConnRate),
		logger:   logger,
	}
}

// NewSession 实现 smtp.Backend
func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	remote := ""
	if addr := c.Conn().RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	if !b.limiter.Acquire() {
		b.logger.Warn("smtp connection rejected", zap.String("remote", remote))
		return nil, errTransient
	}
	return &session{backend: b, remote: remote, state: stateGreeting}, nil
}

// session 单个SMTP连接的会话。
// 显式跟踪命令顺序，乱序命令返回503。
// 每个事务只接受一个收件人：投递是单次原子写入，
// 拒绝路径上绝不留下已落盘的邮件。
type session struct {
	backend *Backend
	remote  string
	state   sessionState
	sender  string
	inbox   *domain.Inbox
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	if s.state != stateGreeting {
		return errBadSequence
	}
	s.sender = from
	s.state = stateMailFrom
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	if s.state != stateMailFrom && s.state != stateRcptTo {
		return errBadSequence
	}
	if s.inbox != nil {
		return errTooManyRecipients
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inbox, err := s.backend.delivery.ResolveRecipient(ctx, to)
	if err != nil {
		if errors.Is(err, domain.ErrInboxNotFound) || errors.Is(err, domain.ErrInvalidAddress) {
			s.backend.logger.Debug("smtp recipient rejected",
				zap.String("to", to), zap.String("remote", s.remote))
			return errUnknownRecipient
		}
		s.backend.logger.Error("smtp recipient lookup failed",
			zap.String("to", to), zap.Error(err))
		return errTransient
	}

	s.inbox = inbox
	s.state = stateRcptTo
	return nil
}

func (s *session) Data(r io.Reader) error {
	if s.state != stateRcptTo || s.inbox == nil {
		return errBadSequence
	}

	// 多读一个字节以区分“刚好达到上限”与“超限”
	raw, err := io.ReadAll(io.LimitReader(r, s.backend.maxBytes+1))
	if err != nil {
		s.backend.logger.Error("smtp read data failed", zap.Error(err))
		return errTransient
	}
	if int64(len(raw)) > s.backend.maxBytes {
		s.backend.logger.Warn("smtp message too large",
			zap.Int("bytes", len(raw)), zap.String("remote", s.remote))
		monitoring.MessagesRejected.WithLabelValues("too_large").Inc()
		return errTooLarge
	}

	parsed, err := ParseEmail(raw)
	if err != nil {
		s.backend.logger.Warn("smtp parse failed",
			zap.String("remote", s.remote), zap.Error(err))
		return errTransient
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	in := &DeliveryInput{
		InboxID:    s.inbox.ID,
		Sender:     s.sender,
		Parsed:     parsed,
		Raw:        raw,
		ReceivedAt: time.Now(),
	}
	if err := s.backend.delivery.Deliver(ctx, in); err != nil {
		switch {
		case errors.Is(err, domain.ErrQuotaExceeded):
			monitoring.MessagesRejected.WithLabelValues("quota").Inc()
			return errQuotaFull
		case errors.Is(err, domain.ErrInboxNotFound):
			monitoring.MessagesRejected.WithLabelValues("unknown_recipient").Inc()
			return errUnknownRecipient
		default:
			s.backend.logger.Error("smtp delivery failed",
				zap.String("inbox_id", in.InboxID), zap.Error(err))
			return errTransient
		}
	}
	monitoring.MessagesDelivered.Inc()
	s.backend.logger.Info("mail delivered",
		zap.String("inbox_id", in.InboxID),
		zap.String("from", s.sender),
		zap.Int("bytes", len(raw)))

	s.Reset()
	return nil
}

func (s *session) Reset() {
	s.state = stateGreeting
	s.sender = ""
	s.inbox = nil
}

func (s *session) Logout() error {
	s.backend.limiter.Release()
	return nil
}

// NewServer 按配置构造SMTP服务器
func NewServer(cfg config.SMTPConfig, maxBytes int64, backend *Backend) *smtp.Server {
	srv := smtp.NewServer(backend)
	srv.Addr = cfg.BindAddr
	srv.Domain = cfg.Hostname
	srv.ReadTimeout = cfg.ReadTimeout
	srv.WriteTimeout = cfg.WriteTimeout
	srv.MaxMessageBytes = maxBytes
	srv.MaxRecipients = 1
	srv.EnableSMTPUTF8 = true
	return srv
}
