package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	data    []byte
	attrs   map[string]string
}

// fakeBackend records publishes and replays them to subscribers on demand.
type fakeBackend struct {
	messages []published
}

func (b *fakeBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	b.messages = append(b.messages, published{channel: channel, data: data, attrs: attrs})
	return "msg-1", nil
}

func (b *fakeBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	for _, msg := range b.messages {
		if msg.channel != channel {
			continue
		}
		if err := handler(ctx, Message{ID: "msg-1", Data: msg.data, Attributes: msg.attrs}); err != nil {
			return err
		}
	}
	return nil
}

func (b *fakeBackend) Close() error { return nil }

func TestQueueMailerVerificationEmail(t *testing.T) {
	backend := &fakeBackend{}
	mailer := NewQueueMailer(NewMQ(backend), "emails", "noreply@contactbook.local", "http://localhost:8080")

	err := mailer.SendVerificationEmail(context.Background(), "alice@example.com", "tok123")
	require.NoError(t, err)

	require.Len(t, backend.messages, 1)
	msg := backend.messages[0]
	assert.Equal(t, "emails", msg.channel)
	assert.Equal(t, "verification", msg.attrs["kind"])

	var job EmailJob
	require.NoError(t, json.Unmarshal(msg.data, &job))
	assert.Equal(t, "alice@example.com", job.To)
	assert.Equal(t, "noreply@contactbook.local", job.From)
	assert.Equal(t, "Email Verification", job.Subject)
	assert.Contains(t, job.Body, "http://localhost:8080/api/auth/verify/tok123")
}

func TestQueueMailerPasswordResetEmail(t *testing.T) {
	backend := &fakeBackend{}
	mailer := NewQueueMailer(NewMQ(backend), "emails", "noreply@contactbook.local", "http://localhost:8080")

	err := mailer.SendPasswordResetEmail(context.Background(), "alice@example.com", "tok456")
	require.NoError(t, err)

	require.Len(t, backend.messages, 1)
	msg := backend.messages[0]
	assert.Equal(t, "password_reset", msg.attrs["kind"])

	var job EmailJob
	require.NoError(t, json.Unmarshal(msg.data, &job))
	assert.Equal(t, "Password Reset", job.Subject)
	assert.Contains(t, job.Body, "http://localhost:8080/api/auth/password-reset/tok456")
}

func TestNopMailer(t *testing.T) {
	var mailer Mailer = NopMailer{}
	assert.NoError(t, mailer.SendVerificationEmail(context.Background(), "a@b.c", "t"))
	assert.NoError(t, mailer.SendPasswordResetEmail(context.Background(), "a@b.c", "t"))
}
