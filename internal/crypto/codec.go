package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"tempbox/backend/internal/domain"
)

// Codec 负责邮件内容的落盘加解密（AES-256-GCM）。
// 每次加密使用新的随机 nonce，密文与 nonce 分开存储。
type Codec struct {
	aead cipher.AEAD
}

// NewCodec 用32字节密钥构造编解码器
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Encrypt 加密明文，返回密文与随机 nonce
func (c *Codec) Encrypt(plaintext []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, c.aead.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext = c.aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt 解密密文。密文被篡改或密钥不匹配时返回 ErrDecryptFailed，
// 绝不返回部分或错误的明文。
func (c *Codec) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != c.aead.NonceSize() {
		return nil, domain.ErrDecryptFailed
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, domain.ErrDecryptFailed
	}
	return plaintext, nil
}

// EncryptString 字符串便捷封装，空串直接返回空密文
func (c *Codec) EncryptString(s string) (ciphertext, nonce []byte, err error) {
	if s == "" {
		return nil, nil, nil
	}
	return c.Encrypt([]byte(s))
}

// DecryptString 字符串便捷封装，空密文返回空串
func (c *Codec) DecryptString(ciphertext, nonce []byte) (string, error) {
	if len(ciphertext) == 0 && len(nonce) == 0 {
		return "", nil
	}
	b, err := c.Decrypt(ciphertext, nonce)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
