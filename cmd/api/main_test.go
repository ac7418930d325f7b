package main

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"jobsentry/internal/db"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunMissingConfig(t *testing.T) {
	if err := run(nil, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunBadConfigPath(t *testing.T) {
	if err := run([]string{"-config", "/nonexistent/config.json"}, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunInvalidConfig(t *testing.T) {
	path := writeConfig(t, `{"server":{}}`)
	if err := run([]string{"-config", path}, nil); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRunServesAndStops(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"http_addr": ":0"},
		"auth": {"token_secret": "s3cret", "admin_email": "admin@example.com"}
	}`)
	served := false
	serve := func(srv *http.Server) error {
		served = true
		if srv.Addr != ":0" {
			t.Errorf("addr: %s", srv.Addr)
		}
		return http.ErrServerClosed
	}
	if err := run([]string{"-config", path}, serve); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !served {
		t.Fatal("serve was not called")
	}
}

func TestRunDBOpenError(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"http_addr": ":0"},
		"auth": {"token_secret": "s3cret"},
		"storage": {"postgres_dsn": "postgres://example"}
	}`)
	orig := newDB
	defer func() { newDB = orig }()
	newDB = func(dsn string) (*db.DB, error) { return nil, os.ErrPermission }

	if err := run([]string{"-config", path}, nil); err == nil {
		t.Fatal("expected db error")
	}
}
