package domain

import "errors"

// 业务错误分类。边界层（HTTP / SMTP）根据这些哨兵错误映射响应码。
var (
	// ErrInboxNotFound 邮箱不存在或已过期。
	ErrInboxNotFound = errors.New("inbox not found")
	// ErrMessageNotFound 邮件不存在或已删除。
	ErrMessageNotFound = errors.New("message not found")
	// ErrQuotaExceeded 邮箱配额（数量或总大小）已用尽。
	ErrQuotaExceeded = errors.New("inbox quota exceeded")
	// ErrMessageTooLarge 单封邮件超出大小上限。
	ErrMessageTooLarge = errors.New("message size exceeds maximum")
	// ErrInvalidToken 访问令牌缺失或格式非法。
	ErrInvalidToken = errors.New("invalid access token")
	// ErrRateLimited 触发限流。
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrDecryptFailed 密文被篡改或密钥不匹配，解密失败。
	// 解密失败绝不返回错误的明文。
	ErrDecryptFailed = errors.New("decryption failed")
	// ErrParseFailed 邮件原文无法拆分出头部与正文。
	ErrParseFailed = errors.New("mail parse failed")
	// ErrInvalidAddress 收件地址格式非法。
	ErrInvalidAddress = errors.New("invalid address")
)
