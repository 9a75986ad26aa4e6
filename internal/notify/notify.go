// Package notify dispatches outbound email as jobs on a message queue.
// Delivery is asynchronous: enqueue failures are reported to the caller so
// they can be logged, but the owning request does not depend on delivery.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

// EmailJob is the queued payload a delivery worker consumes.
type EmailJob struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Mailer enqueues the application's outbound emails.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
}

// QueueMailer publishes email jobs to a broker channel.
type QueueMailer struct {
	mq      *MQ
	queue   string
	from    string
	baseURL string
}

// NewQueueMailer constructs a QueueMailer publishing to the named queue.
func NewQueueMailer(mq *MQ, queue, from, baseURL string) *QueueMailer {
	return &QueueMailer{
		mq:      mq,
		queue:   queue,
		from:    from,
		baseURL: baseURL,
	}
}

// SendVerificationEmail enqueues an email-verification message containing
// the confirmation link.
func (m *QueueMailer) SendVerificationEmail(ctx context.Context, to, token string) error {
	return m.publish(ctx, "verification", EmailJob{
		To:      to,
		From:    m.from,
		Subject: "Email Verification",
		Body:    fmt.Sprintf("Please verify your email by clicking this link: %s/api/auth/verify/%s", m.baseURL, token),
	})
}

// SendPasswordResetEmail enqueues a password-reset message containing the
// reset link.
func (m *QueueMailer) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	return m.publish(ctx, "password_reset", EmailJob{
		To:      to,
		From:    m.from,
		Subject: "Password Reset",
		Body:    fmt.Sprintf("To reset your password, click this link: %s/api/auth/password-reset/%s", m.baseURL, token),
	})
}

func (m *QueueMailer) publish(ctx context.Context, kind string, job EmailJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = m.mq.Publish(ctx, m.queue, data, map[string]string{"kind": kind})
	return err
}

// NopMailer discards all emails. Used when no mail backend is configured
// and in tests.
type NopMailer struct{}

func (NopMailer) SendVerificationEmail(ctx context.Context, to, token string) error  { return nil }
func (NopMailer) SendPasswordResetEmail(ctx context.Context, to, token string) error { return nil }
