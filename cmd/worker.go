/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/contactbook/apiserver/config"
	"github.com/contactbook/apiserver/internal/notify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// workerCmd represents the worker command. It drains the email queue and
// delivers jobs over SMTP.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Runs the email delivery worker",
	Long: `Runs the email delivery worker. Usage:

	contactbook worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		logger, err := zap.NewProduction()
		if err != nil {
			return err
		}
		defer func() {
			_ = logger.Sync()
		}()

		var backend notify.Backend
		switch cfg.Mail.Backend {
		case "rabbitmq":
			backend, err = notify.NewRabbitMQClient(cfg.Mail.RabbitMQ)
		case "pubsub":
			backend, err = notify.NewPubSubClient(cmd.Context(), cfg.Mail.PubSub)
		default:
			return fmt.Errorf("MAIL_BACKEND must be rabbitmq or pubsub, got %q", cfg.Mail.Backend)
		}
		if err != nil {
			return fmt.Errorf("connect mail backend: %w", err)
		}

		mq := notify.NewMQ(backend)
		defer func() {
			_ = mq.Close()
		}()

		sender, err := notify.NewSMTPSender(cfg.Mail.SMTP)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-stop
			cancel()
		}()

		logger.Info("email worker started", zap.String("queue", cfg.Mail.Queue))
		return notify.RunWorker(ctx, mq, cfg.Mail.Queue, sender, logger)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
