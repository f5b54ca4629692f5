package domain

// Attachment 表示邮件附件，内容同样以密文落盘。
type Attachment struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(36)"`            // 附件唯一标识
	MessageID   string `json:"messageId" gorm:"type:varchar(36);index;not null"` // 所属邮件ID
	Filename    string `json:"filename" gorm:"type:varchar(255)"`                // 文件名
	ContentType string `json:"contentType" gorm:"type:varchar(100)"`             // MIME类型
	Size        int64  `json:"size"`                                             // 明文大小（字节）
	Ciphertext  []byte `json:"-" gorm:"type:bytea"`                              // 加密后的内容
	Nonce       []byte `json:"-" gorm:"type:bytea"`                              // 加密随机数
	Content     []byte `json:"-" gorm:"-"`                                       // 解密后的内容（不存数据库）
}
