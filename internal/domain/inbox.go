package domain

import (
	"time"
)

// InboxStatus 表示邮箱的生命周期状态。
type InboxStatus string

const (
	// InboxStatusActive 邮箱处于活跃状态，可以接收邮件。
	InboxStatusActive InboxStatus = "active"
	// InboxStatusExpired 邮箱已过期，等待清理任务物理删除。
	InboxStatusExpired InboxStatus = "expired"
)

// Inbox 表示一个一次性临时邮箱。
//
// Token 明文只在创建时返回一次，存储中只保留单向哈希（TokenHash）。
// 不变式：ExpiresAt 必须晚于 CreatedAt。
type Inbox struct {
	ID           string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Address      string      `json:"address" gorm:"type:varchar(255);uniqueIndex"`
	LocalPart    string      `json:"localPart" gorm:"type:varchar(255)"`
	Domain       string      `json:"domain" gorm:"type:varchar(100);index"`
	TokenHash    string      `json:"-" gorm:"type:varchar(255)"`
	CreatedAt    time.Time   `json:"createdAt"`
	ExpiresAt    time.Time   `json:"expiresAt" gorm:"index"`
	Status       InboxStatus `json:"status" gorm:"type:varchar(16);default:active"`
	MessageCount int         `json:"messageCount"`
	TotalBytes   int64       `json:"totalBytes"`
}

// Expired 判断邮箱在指定时间点是否已过期。
func (i *Inbox) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
