package domain

import "time"

// MessageStatus 表示邮件的读取/删除状态。
type MessageStatus string

const (
	// MessageStatusReceived 已接收，未读。
	MessageStatusReceived MessageStatus = "received"
	// MessageStatusRead 已读。
	MessageStatusRead MessageStatus = "read"
	// MessageStatusDeleted 已删除，读取接口不再返回，等待物理清除。
	MessageStatusDeleted MessageStatus = "deleted"
)

// Message 表示一封临时邮箱内的邮件。
//
// 正文与原始内容均以密文落盘（Ciphertext + Nonce），明文只存在于
// 解密后的瞬态字段（Text / HTML / Raw），这些字段不会写入数据库。
type Message struct {
	ID         string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	InboxID    string        `json:"inboxId" gorm:"type:varchar(36);index;not null"`
	From       string        `json:"from" gorm:"type:varchar(255)"`
	Subject    string        `json:"subject" gorm:"type:varchar(500)"`
	SizeBytes  int64         `json:"sizeBytes"`
	ReceivedAt time.Time     `json:"receivedAt" gorm:"index"`
	Status     MessageStatus `json:"status" gorm:"type:varchar(16);default:received;index"`

	// 密文字段
	TextCiphertext []byte `json:"-" gorm:"type:bytea"`
	TextNonce      []byte `json:"-" gorm:"type:bytea"`
	HTMLCiphertext []byte `json:"-" gorm:"type:bytea"`
	HTMLNonce      []byte `json:"-" gorm:"type:bytea"`
	RawCiphertext  []byte `json:"-" gorm:"type:bytea"`
	RawNonce       []byte `json:"-" gorm:"type:bytea"`

	HasAttachments bool          `json:"hasAttachments" gorm:"default:false"`
	Attachments    []*Attachment `json:"attachments,omitempty" gorm:"foreignKey:MessageID"`

	// 解密后的内容字段（不存数据库）
	Text string `json:"text,omitempty" gorm:"-"`
	HTML string `json:"html,omitempty" gorm:"-"`
	Raw  string `json:"raw,omitempty" gorm:"-"`
}
