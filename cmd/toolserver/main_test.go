package main

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
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

func TestRunMissingToolServerAddr(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"http_addr": ":0"},
		"auth": {"token_secret": "s3cret"}
	}`)
	if err := run([]string{"-config", path}, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunServesAndStops(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"http_addr": ":0"},
		"auth": {"token_secret": "s3cret"},
		"tool_server": {"http_addr": ":0", "shared_secret": "hook"}
	}`)
	served := false
	serve := func(srv *http.Server) error {
		served = true
		return http.ErrServerClosed
	}
	if err := run([]string{"-config", path}, serve); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !served {
		t.Fatal("serve was not called")
	}
}
