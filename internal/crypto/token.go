package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"tempbox/backend/internal/domain"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyz0123456789"

// TokenClaims 邮箱访问令牌的声明
type TokenClaims struct {
	InboxID string `json:"inbox_id"`
	Address string `json:"address"`
	Type    string `json:"type"`
	jwt.RegisteredClaims
}

// TokenManager 负责邮箱访问令牌的签发、校验与哈希
type TokenManager struct {
	secret []byte
	issuer string
}

// NewTokenManager 构造令牌管理器
func NewTokenManager(secret, issuer string) *TokenManager {
	return &TokenManager{secret: []byte(secret), issuer: issuer}
}

// Generate 为邮箱签发访问令牌，有效期与邮箱生命周期一致
func (m *TokenManager) Generate(inboxID, address string, expiresAt time.Time) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		InboxID: inboxID,
		Address: address,
		Type:    "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify 校验令牌签名与有效期，返回声明。
// 签名通过但已过期归为 ErrInboxNotFound（过期邮箱对外等同不存在），
// 其余校验失败都归为 ErrInvalidToken。
func (m *TokenManager) Verify(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		// jwt/v5 只在签名校验通过后才报告声明错误
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrInboxNotFound
		}
		return nil, domain.ErrInvalidToken
	}
	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.Type != "access" {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

// HashToken 对令牌做单向哈希用于存储。
// 先取 SHA-256 摘要再做 bcrypt，避开 bcrypt 72 字节输入上限。
func HashToken(token string) (string, error) {
	digest := sha256.Sum256([]byte(token))
	hash, err := bcrypt.GenerateFromPassword(digest[:], bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hash), nil
}

// CompareToken 校验令牌与存储的哈希是否匹配
func CompareToken(hash, token string) bool {
	digest := sha256.Sum256([]byte(token))
	return bcrypt.CompareHashAndPassword([]byte(hash), digest[:]) == nil
}

// RandomString 生成密码学安全的随机小写字母数字串
func RandomString(length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate random string: %w", err)
		}
		out[i] = alphanumeric[n.Int64()]
	}
	return string(out), nil
}
