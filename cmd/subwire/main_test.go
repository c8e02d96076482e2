package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ambiyansyah-risyal/subwire"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/ping":
			if r.URL.Query().Get("u") != "alice" {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"subsonic-response":{"status":"failed","version":"1.16.0","error":{"code":40,"message":"Wrong username or password"}}}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"subsonic-response":{"status":"ok","version":"1.16.0"}}`))
		case "/rest/stream":
			w.Header().Set("Content-Type", "audio/mpeg")
			w.Header().Set("Content-Range", "bytes "+strings.TrimSuffix(strings.TrimPrefix(r.Header.Get("Range"), "bytes="), "-")+"-9/10")
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write([]byte("abc"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"--version"}, &out); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != subwire.GetVersion() {
		t.Errorf("Expected %q, got %q", subwire.GetVersion(), out.String())
	}
}

func TestRunPing(t *testing.T) {
	server := newServer(t)

	var out bytes.Buffer
	err := run([]string{"--server", server.URL, "-u", "alice", "-p", "sesame"}, &out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "server reports protocol 1.16.0") {
		t.Errorf("Expected version change report, got %q", out.String())
	}
	if !strings.Contains(out.String(), "ping ok: protocol 1.16.0, auth digest") {
		t.Errorf("Expected ping summary, got %q", out.String())
	}
}

func TestRunLegacyAuthAndStream(t *testing.T) {
	server := newServer(t)

	var out bytes.Buffer
	err := run([]string{"--server", server.URL, "-u", "alice", "-p", "sesame", "--legacy-auth", "--stream-id", "5", "--offset", "7"}, &out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "auth legacy") {
		t.Errorf("Expected legacy auth, got %q", out.String())
	}
	if !strings.Contains(out.String(), `stream 5: status 206, content-range "bytes 7-9/10", read 3 bytes`) {
		t.Errorf("Expected stream summary, got %q", out.String())
	}
}

func TestRunConfigFile(t *testing.T) {
	server := newServer(t)
	path := filepath.Join(t.TempDir(), "subwire.toml")
	config := "server = \"" + server.URL + "\"\nusername = \"bob\"\npassword = \"x\"\n[cache]\ncompress = true\n"
	if err := os.WriteFile(path, []byte(config), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := run([]string{"--config", path}, &out)
	if !errors.Is(err, subwire.ErrAuthenticationRejected) {
		t.Fatalf("Expected rejected credentials for bob, got %v", err)
	}

	out.Reset()
	if err := run([]string{"--config", path, "-u", "alice"}, &out); err != nil {
		t.Fatalf("Expected flag to override config, got %v", err)
	}
}

func TestRunOffline(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"--server", "http://127.0.0.1:1", "-u", "alice", "--offline"}, &out)
	if !errors.Is(err, subwire.ErrUnsatisfiableFromCache) {
		t.Errorf("Expected offline failure, got %v", err)
	}
}

func TestRunMissingServer(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"-u", "alice"}, &out); err == nil || !strings.Contains(err.Error(), "missing server") {
		t.Errorf("Expected missing server error, got %v", err)
	}
}

func TestRunBadFlag(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"--no-such-flag"}, &out); err == nil {
		t.Error("Expected flag parse error")
	}
}
