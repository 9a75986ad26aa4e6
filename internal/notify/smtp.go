package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/contactbook/apiserver/config"
)

// SMTPSender delivers queued email jobs over SMTP. It is used by the
// delivery worker, never by request handlers.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	host string
}

// NewSMTPSender constructs a sender from config.
func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth: auth,
		host: cfg.Host,
	}, nil
}

// Send delivers a single email job.
func (s *SMTPSender) Send(job EmailJob) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		job.From, job.To, job.Subject, job.Body)
	return smtp.SendMail(s.addr, s.auth, job.From, []string{job.To}, []byte(msg))
}

// RunWorker drains the email queue, delivering each job via the sender.
// It blocks until ctx is canceled. A failed delivery nacks the message so
// the broker redelivers it.
func RunWorker(ctx context.Context, mq *MQ, queue string, sender *SMTPSender, logger *zap.Logger) error {
	return mq.Subscribe(ctx, queue, func(ctx context.Context, msg Message) error {
		var job EmailJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			// Malformed payloads can never succeed; drop them.
			logger.Error("dropping malformed email job", zap.String("message_id", msg.ID), zap.Error(err))
			return nil
		}
		if err := sender.Send(job); err != nil {
			logger.Error("email delivery failed",
				zap.String("message_id", msg.ID),
				zap.String("to", job.To),
				zap.Error(err))
			return err
		}
		logger.Info("email delivered",
			zap.String("message_id", msg.ID),
			zap.String("to", job.To),
			zap.String("kind", msg.Attributes["kind"]))
		return nil
	})
}
