package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobsentry/internal/audit"
	"jobsentry/internal/config"
	"jobsentry/internal/db"
	"jobsentry/internal/jobs"
	"jobsentry/internal/logging"
	"jobsentry/internal/supervisor"
	"jobsentry/internal/tools"
	"jobsentry/internal/toolserver"
)

func main() {
	logging.Init("toolserver", nil)
	if err := run(os.Args[1:], serveHTTP); err != nil {
		fatalf("toolserver: %v", err)
	}
}

var serveHTTP = func(srv *http.Server) error { return srv.ListenAndServe() }
var fatalf = func(format string, args ...any) {
	slog.Error("fatal", "error", fmt.Sprintf(format, args...))
	os.Exit(1)
}
var newDB = db.NewDB

func run(args []string, serve func(*http.Server) error) error {
	fs := flag.NewFlagSet("toolserver", flag.ContinueOnError)
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
	if cfg.ToolServer.HTTPAddr == "" {
		return errors.New("tool_server.http_addr required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var (
		database  *db.DB
		jobStore  jobs.Store
		auditSink audit.Sink
	)
	if cfg.Storage.PostgresDSN != "" {
		database, err = newDB(cfg.Storage.PostgresDSN)
		if err != nil {
			return err
		}
		defer database.Close()
		jobStore = database.Jobs()
		auditSink = database
	} else {
		slog.Warn("no postgres_dsn configured, using in-memory stores")
		jobStore = jobs.NewMemoryStore()
		auditSink = audit.NewMemoryLog(0)
	}

	recorder := audit.NewRecorder(auditSink)
	jobSvc := jobs.NewService(jobStore, recorder)
	exec := &tools.Executor{
		Registry: tools.NewRegistry(cfg.Server.EnableTestEndpoints),
		Jobs:     jobSvc,
		Audit:    recorder,
	}
	tokens := supervisor.NewTokenStore(cfg.ConfirmTokenTTL())

	srv := toolserver.NewServer(exec, tokens, cfg.ToolServer.SharedSecret)
	mainSrv := &http.Server{Addr: cfg.ToolServer.HTTPAddr, Handler: srv.Handler()}

	errCh := make(chan error, 1)
	go func() { errCh <- serve(mainSrv) }()

	slog.Info("toolserver listening", "addr", cfg.ToolServer.HTTPAddr)
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
