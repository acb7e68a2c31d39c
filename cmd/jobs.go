package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-integrations/app/service"
	"github.com/vibast-solutions/ms-go-integrations/config"
)

var (
	workerMode bool
)

var webhooksCmd = &cobra.Command{
	Use:   "webhooks",
	Short: "Run webhook related commands",
}

var webhooksRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-process stored webhooks whose retry is due",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"webhooks_retry",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.WebhookRetryInterval },
			func(s *service.PaymentService, ctx context.Context) error {
				return s.RunWebhookRetryBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(webhooksCmd)
	webhooksCmd.AddCommand(webhooksRetryCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.PaymentService, ctx context.Context) error,
) {
	svc, cleanup := mustCreateServices()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(svc.cfg), svc.payments, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(svc.payments, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	paymentService *service.PaymentService,
	fn func(s *service.PaymentService, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(paymentService, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(paymentService, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
