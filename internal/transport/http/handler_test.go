package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/crypto"
	"tempbox/backend/internal/health"
	"tempbox/backend/internal/ratelimit"
	"tempbox/backend/internal/sanitize"
	"tempbox/backend/internal/service"
	"tempbox/backend/internal/smtp"
	"tempbox/backend/internal/storage/memory"
	"tempbox/backend/internal/ttl"
)

type apiEnv struct {
	router   *gin.Engine
	inboxes  *service.InboxService
	messages *service.MessageService
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "test"},
		Inbox: config.InboxConfig{
			Domain:          "tempbox.local",
			AddressPrefix:   "tmp_",
			AddressLength:   24,
			DefaultTTL:      time.Hour,
			MaxTTL:          24 * time.Hour,
			MaxMessages:     50,
			MaxMessageBytes: 10 * 1024 * 1024,
		},
		RateLimit: config.RateLimitConfig{APIPerMinute: 1000, InboxCreatePerHour: 1000},
		CORS:      config.CORSConfig{AllowOrigins: []string{"*"}},
	}

	store := memory.NewStore()
	key := make([]byte, 32)
	codec, err := crypto.NewCodec(key)
	require.NoError(t, err)

	logger := zap.NewNop()
	inboxes := service.NewInboxService(cfg.Inbox, store,
		crypto.NewTokenManager("test-secret-key-at-least-32-characters!!", "tempbox"),
		ttl.NewIndex(), nil, logger)
	messages := service.NewMessageService(cfg.Inbox, store, codec, sanitize.New(), inboxes, nil, logger)

	limiter := ratelimit.New(ratelimit.NewMemoryCounter(), cfg.RateLimit)
	handler := NewHandler(cfg.Inbox, inboxes, messages, nil, logger)
	router := NewRouter(cfg, handler, inboxes, limiter, health.NewHandler(store), logger)
	return &apiEnv{router: router, inboxes: inboxes, messages: messages}
}

func (e *apiEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *apiEnv) createInbox(t *testing.T) (inboxID, address, token string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/inboxes", "", "")
	require.Equal(t, http.StatusCreated, w.Code)

	var res struct {
		InboxID string `json:"inbox_id"`
		Address string `json:"address"`
		Token   string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res.InboxID, res.Address, res.Token
}

func (e *apiEnv) deliver(t *testing.T, inboxID, subject string) {
	t.Helper()
	err := e.messages.Deliver(context.Background(), &smtp.DeliveryInput{
		InboxID: inboxID,
		Sender:  "sender@example.com",
		Parsed: &smtp.ParsedEmail{
			Subject: subject,
			Text:    "body of " + subject,
		},
		Raw:        []byte("From: sender@example.com\r\n\r\nbody\r\n"),
		ReceivedAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestCreateInboxEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/inboxes", "", `{"ttl_seconds": 3600}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var res map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.NotEmpty(t, res["inbox_id"])
	assert.NotEmpty(t, res["token"])
	assert.Contains(t, res["address"], "@tempbox.local")
}

func TestCreateInboxNegativeTTL(t *testing.T) {
	env := newAPIEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/inboxes", "", `{"ttl_seconds": -5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetInboxAuth(t *testing.T) {
	env := newAPIEnv(t)
	inboxID, address, token := env.createInbox(t)

	// 正确令牌
	w := env.do(t, http.MethodGet, "/api/v1/inboxes/"+inboxID, token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var res map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, address, res["address"])

	// 缺失令牌
	w = env.do(t, http.MethodGet, "/api/v1/inboxes/"+inboxID, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 非法令牌
	w = env.do(t, http.MethodGet, "/api/v1/inboxes/"+inboxID, "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWrongTokenIndistinguishableFromMissingInbox(t *testing.T) {
	env := newAPIEnv(t)
	aID, _, _ := env.createInbox(t)
	_, _, bToken := env.createInbox(t)

	// 用B的令牌访问A
	wWrong := env.do(t, http.MethodGet, "/api/v1/inboxes/"+aID, bToken, "")
	// 用B的令牌访问不存在的邮箱
	wMissing := env.do(t, http.MethodGet, "/api/v1/inboxes/no-such-inbox", bToken, "")

	assert.Equal(t, http.StatusNotFound, wWrong.Code)
	assert.Equal(t, http.StatusNotFound, wMissing.Code)
	assert.JSONEq(t, wMissing.Body.String(), wWrong.Body.String())
}

func TestListAndGetMessages(t *testing.T) {
	env := newAPIEnv(t)
	inboxID, _, token := env.createInbox(t)

	w := env.do(t, http.MethodGet, "/api/v1/inboxes/"+inboxID+"/messages", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Messages []map[string]interface{} `json:"messages"`
		Count    int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 0, list.Count)

	env.deliver(t, inboxID, "hello")

	w = env.do(t, http.MethodGet, "/api/v1/inboxes/"+inboxID+"/messages", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	msgID := list.Messages[0]["id"].(string)
	assert.Equal(t, "hello", list.Messages[0]["subject"])

	w = env.do(t, http.MethodGet, "/api/v1/inboxes/"+inboxID+"/messages/"+msgID, token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	assert.Equal(t, "body of hello", msg["text"])
	assert.Equal(t, true, msg["read"])
}

func TestMessageOwnership(t *testing.T) {
	env := newAPIEnv(t)
	aID, _, _ := env.createInbox(t)
	bID, _, bToken := env.createInbox(t)
	env.deliver(t, aID, "private")

	w := env.do(t, http.MethodGet, "/api/v1/inboxes/"+aID+"/messages", bToken, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// B无法通过自己的邮箱路径读取A的邮件
	listW := env.do(t, http.MethodGet, "/api/v1/inboxes/"+bID+"/messages", bToken, "")
	require.Equal(t, http.StatusOK, listW.Code)

	msgs, err := env.messages.List(context.Background(), aID)
	require.NoError(t, err)
	w = env.do(t, http.MethodGet, "/api/v1/inboxes/"+bID+"/messages/"+msgs[0].ID, bToken, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteMessageEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	inboxID, _, token := env.createInbox(t)
	env.deliver(t, inboxID, "to delete")

	msgs, err := env.messages.List(context.Background(), inboxID)
	require.NoError(t, err)

	w := env.do(t, http.MethodDelete, "/api/v1/inboxes/"+inboxID+"/messages/"+msgs[0].ID, token, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/inboxes/"+inboxID+"/messages/"+msgs[0].ID, token, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteInboxEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	inboxID, _, token := env.createInbox(t)

	w := env.do(t, http.MethodDelete, "/api/v1/inboxes/"+inboxID, token, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/inboxes/"+inboxID, token, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRawMessageEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	inboxID, _, token := env.createInbox(t)
	env.deliver(t, inboxID, "raw")

	msgs, err := env.messages.List(context.Background(), inboxID)
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/v1/inboxes/"+inboxID+"/messages/"+msgs[0].ID+"/raw", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "message/rfc822", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "sender@example.com")
}

func TestRateLimitedCreate(t *testing.T) {
	env := newAPIEnv(t)

	// 专用更小额度的限流器重新组装路由
	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: "test"},
		Inbox:     config.InboxConfig{Domain: "tempbox.local", AddressPrefix: "tmp_", AddressLength: 24, DefaultTTL: time.Hour, MaxTTL: 24 * time.Hour, MaxMessages: 50},
		RateLimit: config.RateLimitConfig{APIPerMinute: 100, InboxCreatePerHour: 2},
		CORS:      config.CORSConfig{AllowOrigins: []string{"*"}},
	}
	limiter := ratelimit.New(ratelimit.NewMemoryCounter(), cfg.RateLimit)
	handler := NewHandler(cfg.Inbox, env.inboxes, env.messages, nil, zap.NewNop())
	router := NewRouter(cfg, handler, env.inboxes, limiter,
		health.NewHandler(memory.NewStore()), zap.NewNop())

	env.router = router
	w := env.do(t, http.MethodPost, "/api/v1/inboxes", "", "")
	assert.Equal(t, http.StatusCreated, w.Code)
	w = env.do(t, http.MethodPost, "/api/v1/inboxes", "", "")
	assert.Equal(t, http.StatusCreated, w.Code)
	w = env.do(t, http.MethodPost, "/api/v1/inboxes", "", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestHealthEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodGet, "/live", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
