// Command mailhouse wires every adapter (storage, Graph, IMAP, fanout,
// subscriptions, webhook, batch, platform, code wait) into a running
// service, and exposes the offline credential migration pass as a
// subcommand. Wiring order follows the teacher's main.go: connect
// storage, init schema, build adapters, build the coordinating services,
// then run.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/google/uuid"

	"github.com/stoik/mailhouse/internal/batch"
	"github.com/stoik/mailhouse/internal/codewait"
	"github.com/stoik/mailhouse/internal/config"
	"github.com/stoik/mailhouse/internal/fanout"
	"github.com/stoik/mailhouse/internal/graph"
	"github.com/stoik/mailhouse/internal/httpapi"
	"github.com/stoik/mailhouse/internal/imapfetch"
	"github.com/stoik/mailhouse/internal/migrate"
	"github.com/stoik/mailhouse/internal/platform"
	"github.com/stoik/mailhouse/internal/store"
	"github.com/stoik/mailhouse/internal/subscriptions"
	"github.com/stoik/mailhouse/internal/vault"
	"github.com/stoik/mailhouse/internal/webhook"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	app := &cli.App{
		Name:  "mailhouse",
		Usage: "mailbox aggregation engine: Graph push + IMAP pull, verification-code wait, platform tagging",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "optional YAML config file", EnvVars: []string{"MAILHOUSE_CONFIG"}},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "start the webhook listener, renewal loop, and job consumer",
				Action: func(c *cli.Context) error {
					return runServer(c.Context, c.String("config"), logger)
				},
			},
			{
				Name:  "migrate-credentials",
				Usage: "re-encrypt any mailbox credential fields still stored as plaintext",
				Action: func(c *cli.Context) error {
					return runMigrateCredentials(c.Context, c.String("config"), logger)
				},
			},
		},
		ExitErrHandler: func(c *cli.Context, err error) {
			if err != nil {
				logger.Error().Err(err).Msg("command failed")
				cli.OsExiter(1)
			}
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal().Err(err).Msg("mailhouse exited with error")
	}
}

func loadDeps(path string, logger zerolog.Logger) (cfg config.Config, v *vault.Vault, st *store.PostgresStore, err error) {
	cfg, err = config.Load(path)
	if err != nil {
		return cfg, nil, nil, err
	}

	v, err = vault.New()
	if err != nil {
		return cfg, nil, nil, err
	}

	st, err = store.New(cfg.DatabaseURL, v, logger)
	if err != nil {
		return cfg, nil, nil, err
	}
	if err := st.InitSchema(); err != nil {
		st.Close()
		return cfg, nil, nil, err
	}
	return cfg, v, st, nil
}

func runMigrateCredentials(ctx context.Context, configPath string, logger zerolog.Logger) error {
	_, _, st, err := loadDeps(configPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := migrate.Credentials(ctx, st, logger)
	if err != nil {
		return err
	}
	logger.Info().
		Int("total", result.Total).
		Int("migrated", result.Migrated).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("migration finished")
	if result.Failed > 0 {
		return errors.New("migration completed with failures")
	}
	return nil
}

func runServer(ctx context.Context, configPath string, logger zerolog.Logger) error {
	cfg, _, st, err := loadDeps(configPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.WebhookURL == "" {
		logger.Warn().Msg("GRAPH_WEBHOOK_URL unset: subscription manager and webhook fetch path disabled")
	}

	fo := fanout.New()
	graphClient := graph.New(&http.Client{Timeout: 30 * time.Second}, logger)
	imapFetcher := imapfetch.New(logger)
	classifier := platform.New(st)
	checker := batch.New(st, graphClient, imapFetcher, fo, cfg.CheckTimeout, logger).WithClassifier(classifier)
	waiter := codewait.New(st, fo)

	router := webhook.New(256, logger)
	go consumeJobs(ctx, router, checker, logger)

	getCode := &httpapi.GetCodeHandler{Storage: st, Waiter: waiter, Log: logger}
	checkOne := &httpapi.CheckOneHandler{Checker: checker}

	mux := http.NewServeMux()
	mux.Handle("/api/graph/webhook", router)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/emails/get_code", getCode.ServeHTTP)
	mux.HandleFunc("POST /api/emails/{id}/check", func(w http.ResponseWriter, r *http.Request) {
		mailboxID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid mailbox id", http.StatusBadRequest)
			return
		}
		checkOne.ServeHTTP(w, r, mailboxID)
	})

	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.WebhookURL != "" {
		manager := subscriptions.New(st, graphClient, cfg.WebhookURL, logger)
		go manager.StartRenewalLoop(ctx, cfg.SubscriptionPoll)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func consumeJobs(ctx context.Context, router *webhook.Router, checker *batch.Checker, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-router.Jobs:
			result := checker.CheckFromNotification(ctx, job.MailboxID)
			router.Release(job.MailboxID)
			if !result.Success {
				logger.Warn().Str("mailbox", job.MailboxID.String()).Str("reason", result.Message).Msg("webhook-triggered check failed")
			}
		}
	}
}
