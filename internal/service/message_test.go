package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/crypto"
	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/sanitize"
	"tempbox/backend/internal/smtp"
	"tempbox/backend/internal/storage/memory"
	"tempbox/backend/internal/ttl"
)

type testEnv struct {
	inboxes  *InboxService
	messages *MessageService
}

type recordingNotifier struct {
	events []string
}

func (n *recordingNotifier) NotifyNewMessage(inboxID string, _ *domain.Message) {
	n.events = append(n.events, inboxID)
}

func newTestEnv(t *testing.T, cfg config.InboxConfig, notifier Notifier) *testEnv {
	t.Helper()
	store := memory.NewStore()
	key := make([]byte, 32)
	codec, err := crypto.NewCodec(key)
	require.NoError(t, err)

	inboxes := NewInboxService(cfg, store,
		crypto.NewTokenManager("test-secret-key-at-least-32-characters!!", "tempbox"),
		ttl.NewIndex(), nil, zap.NewNop())
	messages := NewMessageService(cfg, store, codec, sanitize.New(), inboxes, notifier, zap.NewNop())
	return &testEnv{inboxes: inboxes, messages: messages}
}

func testDelivery(inboxID string) *smtp.DeliveryInput {
	return &smtp.DeliveryInput{
		InboxID: inboxID,
		Sender:  "sender@example.com",
		Parsed: &smtp.ParsedEmail{
			From:    "Sender <sender@example.com>",
			Subject: "Welcome",
			Text:    "hello plain text body",
			HTML:    `<p>hello</p><script>alert(1)</script>`,
		},
		Raw:        []byte("From: sender@example.com\r\n\r\nhello plain text body\r\n"),
		ReceivedAt: time.Now(),
	}
}

func TestDeliverAndGet(t *testing.T) {
	env := newTestEnv(t, testInboxConfig(), nil)
	ctx := context.Background()

	res, err := env.inboxes.Create(ctx, 0)
	require.NoError(t, err)

	require.NoError(t, env.messages.Deliver(ctx, testDelivery(res.Inbox.ID)))

	previews, err := env.messages.List(ctx, res.Inbox.ID)
	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.Equal(t, "Welcome", previews[0].Subject)
	assert.False(t, previews[0].Read)
	assert.Contains(t, previews[0].Preview, "hello plain text")

	msg, err := env.messages.Get(ctx, previews[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "hello plain text body", msg.Text)
	// HTML在落盘前已消毒
	assert.Contains(t, msg.HTML, "<p>hello</p>")
	assert.NotContains(t, msg.HTML, "script")
	assert.Equal(t, domain.MessageStatusRead, msg.Status)
}

func TestDeliverEncryptsAtRest(t *testing.T) {
	env := newTestEnv(t, testInboxConfig(), nil)
	ctx := context.Background()

	res, err := env.inboxes.Create(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, env.messages.Deliver(ctx, testDelivery(res.Inbox.ID)))

	previews, err := env.messages.List(ctx, res.Inbox.ID)
	require.NoError(t, err)
	stored, err := env.messages.Peek(ctx, previews[0].ID)
	require.NoError(t, err)

	// 存储中的字节不含明文
	assert.NotContains(t, string(stored.TextCiphertext), "hello plain text")
	assert.NotContains(t, string(stored.RawCiphertext), "hello plain text")
	assert.Empty(t, stored.Text)
}

func TestDeliverQuota(t *testing.T) {
	cfg := testInboxConfig()
	cfg.MaxMessages = 2
	env := newTestEnv(t, cfg, nil)
	ctx := context.Background()

	res, err := env.inboxes.Create(ctx, 0)
	require.NoError(t, err)

	require.NoError(t, env.messages.Deliver(ctx, testDelivery(res.Inbox.ID)))
	require.NoError(t, env.messages.Deliver(ctx, testDelivery(res.Inbox.ID)))
	assert.ErrorIs(t, env.messages.Deliver(ctx, testDelivery(res.Inbox.ID)), domain.ErrQuotaExceeded)
}

func TestDeliverTooLarge(t *testing.T) {
	cfg := testInboxConfig()
	cfg.MaxMessageBytes = 10
	env := newTestEnv(t, cfg, nil)
	ctx := context.Background()

	res, err := env.inboxes.Create(ctx, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, env.messages.Deliver(ctx, testDelivery(res.Inbox.ID)), domain.ErrMessageTooLarge)
}

func TestDeliverNotifies(t *testing.T) {
	notifier := &recordingNotifier{}
	env := newTestEnv(t, testInboxConfig(), notifier)
	ctx := context.Background()

	res, err := env.inboxes.Create(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, env.messages.Deliver(ctx, testDelivery(res.Inbox.ID)))

	assert.Equal(t, []string{res.Inbox.ID}, notifier.events)
}

func TestDeliverWithAttachments(t *testing.T) {
	env := newTestEnv(t, testInboxConfig(), nil)
	ctx := context.Background()

	res, err := env.inboxes.Create(ctx, 0)
	require.NoError(t, err)

	in := testDelivery(res.Inbox.ID)
	in.Parsed.Attachments = []smtp.ParsedAttachment{
		{Filename: "doc.pdf", ContentType: "application/pdf", Content: []byte("%PDF-fake")},
	}
	require.NoError(t, env.messages.Deliver(ctx, in))

	previews, err := env.messages.List(ctx, res.Inbox.ID)
	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.True(t, previews[0].HasAttachments)

	msg, err := env.messages.Peek(ctx, previews[0].ID)
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)
	assert.NotContains(t, string(msg.Attachments[0].Ciphertext), "%PDF-fake")

	att, err := env.messages.GetAttachment(ctx, msg.ID, msg.Attachments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-fake"), att.Content)
	assert.Equal(t, "doc.pdf", att.Filename)

	_, err = env.messages.GetAttachment(ctx, msg.ID, "missing")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestGetRaw(t *testing.T) {
	env := newTestEnv(t, testInboxConfig(), nil)
	ctx := context.Background()

	res, err := env.inboxes.Create(ctx, 0)
	require.NoError(t, err)
	in := testDelivery(res.Inbox.ID)
	require.NoError(t, env.messages.Deliver(ctx, in))

	previews, err := env.messages.List(ctx, res.Inbox.ID)
	require.NoError(t, err)
	raw, err := env.messages.GetRaw(ctx, previews[0].ID)
	require.NoError(t, err)
	assert.Equal(t, in.Raw, raw)
}

func TestDeleteMessage(t *testing.T) {
	env := newTestEnv(t, testInboxConfig(), nil)
	ctx := context.Background()

	res, err := env.inboxes.Create(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, env.messages.Deliver(ctx, testDelivery(res.Inbox.ID)))

	previews, err := env.messages.List(ctx, res.Inbox.ID)
	require.NoError(t, err)
	require.NoError(t, env.messages.Delete(ctx, previews[0].ID))

	_, err = env.messages.Get(ctx, previews[0].ID)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)

	previews, err = env.messages.List(ctx, res.Inbox.ID)
	require.NoError(t, err)
	assert.Empty(t, previews)
}

func TestListOrderNewestFirst(t *testing.T) {
	env := newTestEnv(t, testInboxConfig(), nil)
	ctx := context.Background()

	res, err := env.inboxes.Create(ctx, 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		in := testDelivery(res.Inbox.ID)
		in.Parsed.Subject = fmt.Sprintf("msg-%d", i)
		in.ReceivedAt = time.Now().Add(time.Duration(i) * time.Second)
		require.NoError(t, env.messages.Deliver(ctx, in))
	}

	previews, err := env.messages.List(ctx, res.Inbox.ID)
	require.NoError(t, err)
	require.Len(t, previews, 3)
	assert.Equal(t, "msg-2", previews[0].Subject)
	assert.Equal(t, "msg-0", previews[2].Subject)
}

func TestPreviewTruncated(t *testing.T) {
	env := newTestEnv(t, testInboxConfig(), nil)
	ctx := context.Background()

	res, err := env.inboxes.Create(ctx, 0)
	require.NoError(t, err)
	in := testDelivery(res.Inbox.ID)
	in.Parsed.Text = strings.Repeat("x", 500)
	require.NoError(t, env.messages.Deliver(ctx, in))

	previews, err := env.messages.List(ctx, res.Inbox.ID)
	require.NoError(t, err)
	assert.Len(t, previews[0].Preview, previewRunes)
}
