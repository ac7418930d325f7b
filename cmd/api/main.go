package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"jobsentry/internal/audit"
	"jobsentry/internal/auth"
	"jobsentry/internal/config"
	"jobsentry/internal/db"
	"jobsentry/internal/jobs"
	"jobsentry/internal/logging"
	"jobsentry/internal/supervisor"
	"jobsentry/internal/tools"
	"jobsentry/internal/web"
	"jobsentry/internal/webhook"
)

func main() {
	logging.Init("api", nil)
	if err := run(os.Args[1:], serveHTTP); err != nil {
		fatalf("api: %v", err)
	}
}

var serveHTTP = func(srv *http.Server) error { return srv.ListenAndServe() }
var fatalf = func(format string, args ...any) {
	slog.Error("fatal", "error", fmt.Sprintf(format, args...))
	os.Exit(1)
}
var newDB = db.NewDB

func run(args []string, serve func(*http.Server) error) error {
	fs := flag.NewFlagSet("api", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return errors.New("config required")
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Storage: Postgres when configured, in-memory otherwise. The in-memory
	// mode serves single-node and local setups without a database.
	var (
		database  *db.DB
		jobStore  jobs.Store
		auditSink audit.Sink
		auditRead audit.Reader
		records   webhook.RecordStore
	)
	if cfg.Storage.PostgresDSN != "" {
		database, err = newDB(cfg.Storage.PostgresDSN)
		if err != nil {
			return err
		}
		defer database.Close()
		jobStore = database.Jobs()
		auditSink = database
		auditRead = database
		records = database
	} else {
		slog.Warn("no postgres_dsn configured, using in-memory stores")
		jobStore = jobs.NewMemoryStore()
		memLog := audit.NewMemoryLog(0)
		auditSink = memLog
		auditRead = memLog
		records = webhook.NewMemoryRecordStore()
	}

	recorder := audit.NewRecorder(auditSink)
	jobSvc := jobs.NewService(jobStore, recorder)
	jobSvc.AllowForce = cfg.Supervisor.AllowForceStatus

	registry := tools.NewRegistry(cfg.Server.EnableTestEndpoints)
	exec := &tools.Executor{Registry: registry, Jobs: jobSvc, Audit: recorder}
	tokens := supervisor.NewTokenStore(cfg.ConfirmTokenTTL())
	sup := &supervisor.Supervisor{
		Tools:           exec,
		Tokens:          tokens,
		Audit:           recorder,
		DefaultLanguage: cfg.Supervisor.DefaultLanguage,
	}

	slackVerifier := &webhook.SlackVerifier{
		SigningSecret: cfg.Slack.SigningSecret,
		MaxSkew:       cfg.FreshnessWindow(),
	}
	slackIntake := &webhook.Intake{
		Sender:   webhook.SenderSlack,
		Verifier: slackVerifier,
		Parse: func(_ http.Header, body []byte) (webhook.Event, error) {
			return slackVerifier.Parse(body)
		},
		Records:   records,
		Jobs:      jobSvc,
		Audit:     recorder,
		Notifier:  webhook.LogNotifier{},
		Retention: cfg.WebhookRetention(),
	}
	githubVerifier := &webhook.GitHubVerifier{Secret: cfg.GitHub.WebhookSecret}
	githubIntake := &webhook.Intake{
		Sender:    webhook.SenderGitHub,
		Verifier:  githubVerifier,
		Parse:     githubVerifier.Parse,
		Records:   records,
		Jobs:      jobSvc,
		Audit:     recorder,
		Notifier:  webhook.LogNotifier{},
		Retention: cfg.WebhookRetention(),
	}

	// slack.simulate_mention injects a synthetic, properly signed mention
	// through the real intake path so local tests exercise verification,
	// dedup, and job creation end to end.
	exec.SimulateMention = func(ctx context.Context, text, user, channel string) (map[string]any, error) {
		body, err := json.Marshal(map[string]any{
			"type":     "event_callback",
			"event_id": "test-" + uuid.NewString(),
			"event": map[string]any{
				"type":    "app_mention",
				"user":    user,
				"channel": channel,
				"text":    text,
				"ts":      fmt.Sprintf("%d.000000", time.Now().Unix()),
			},
		})
		if err != nil {
			return nil, err
		}
		header := webhook.SignSlackRequest(cfg.Slack.SigningSecret, time.Now(), body)
		res, err := slackIntake.Handle(ctx, header, body)
		if err != nil {
			return nil, err
		}
		return map[string]any{"outcome": string(res.Outcome), "job_id": res.JobID}, nil
	}

	srv := web.NewServer()
	srv.Jobs = jobSvc
	srv.Supervisor = sup
	srv.Tools = exec
	srv.Audit = recorder
	srv.AuditLog = auditRead
	srv.Slack = slackIntake
	srv.GitHub = githubIntake
	srv.Signer = &auth.TokenSigner{Secret: []byte(cfg.Auth.TokenSecret), MaxAge: cfg.TokenMaxAge()}
	srv.AdminEmail = cfg.Auth.AdminEmail
	srv.AdminPassword = cfg.Auth.AdminPassword
	srv.ServiceToken = cfg.Auth.ServiceToken
	srv.EnableTestEndpoints = cfg.Server.EnableTestEndpoints
	if cfg.Server.RateLimitPerSec > 0 {
		burst := cfg.Server.RateLimitBurst
		if burst <= 0 {
			burst = int(cfg.Server.RateLimitPerSec) * 2
		}
		srv.RateLimiter = web.NewRateLimiter(cfg.Server.RateLimitPerSec, burst)
	}
	if database != nil {
		srv.Ready = func(ctx context.Context) error { return database.Ping(ctx) }
	}

	var wg sync.WaitGroup
	if cfg.Janitor.Enabled {
		janitor := &web.Janitor{Records: records, Tokens: tokens, Schedule: cfg.Janitor.Schedule}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := janitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("janitor stopped", "error", err)
			}
		}()
	}

	recorder.Record(ctx, audit.Event{
		Action: audit.ActionSystemStartup,
		Actor:  auth.SystemActor.Email,
		Details: map[string]any{
			"addr":           cfg.Server.HTTPAddr,
			"storage":        storageMode(database),
			"test_endpoints": cfg.Server.EnableTestEndpoints,
		},
	})

	mainSrv := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: srv.Handler()}
	errCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- serve(mainSrv)
	}()

	slog.Info("api listening", "addr", cfg.Server.HTTPAddr)
	select {
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = mainSrv.Shutdown(shutdownCtx)
	wg.Wait()
	select {
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	default:
		return nil
	}
}

func storageMode(database *db.DB) string {
	if database != nil {
		return "postgres"
	}
	return "memory"
}
