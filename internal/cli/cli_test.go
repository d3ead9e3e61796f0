package cli

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"expenses/internal/log"
)

func testLogger(buf *bytes.Buffer) *log.Logger {
	return log.New(log.Config{Format: "text", Output: buf})
}

// freePort finds a port that is free right now and releases it.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestListenAvailableUsesConfiguredPort(t *testing.T) {
	port := freePort(t)
	ln, err := ListenAvailable(context.Background(), testLogger(&bytes.Buffer{}), "127.0.0.1", port, 5)
	if err != nil {
		t.Fatalf("ListenAvailable: %v", err)
	}
	defer ln.Close()
	if got := ListenerPort(ln); got != port {
		t.Fatalf("port = %d, want %d", got, port)
	}
}

func TestListenAvailableSkipsBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()
	port := ListenerPort(busy)
	if port >= 65535 {
		t.Skip("no room above ephemeral port")
	}

	var buf bytes.Buffer
	ln, err := ListenAvailable(context.Background(), testLogger(&buf), "127.0.0.1", port, 20)
	if err != nil {
		t.Skipf("no free port near %d: %v", port, err)
	}
	defer ln.Close()
	if got := ListenerPort(ln); got <= port || got >= port+20 {
		t.Fatalf("port = %d, want in (%d, %d)", got, port, port+20)
	}
	if !strings.Contains(buf.String(), "Configured port unavailable") {
		t.Fatalf("log = %s", buf.String())
	}
}

func TestListenAvailableNoScan(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	_, err = ListenAvailable(context.Background(), testLogger(&bytes.Buffer{}), "127.0.0.1", ListenerPort(busy), 0)
	if err == nil {
		t.Fatal("expected error when the only candidate port is busy")
	}
}

func TestListenAvailableInvalidPort(t *testing.T) {
	for _, p := range []int{0, -1, 70000} {
		if _, err := ListenAvailable(context.Background(), testLogger(&bytes.Buffer{}), "127.0.0.1", p, 3); err == nil {
			t.Errorf("port %d: expected error", p)
		}
	}
}

func TestGracefulShutdownRunsAllSteps(t *testing.T) {
	var ran []string
	boom := errors.New("boom")
	err := GracefulShutdown(testLogger(&bytes.Buffer{}), time.Second,
		func(context.Context) error { ran = append(ran, "http"); return boom },
		nil,
		func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("step context has no deadline")
			}
			ran = append(ran, "store")
			return nil
		},
	)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if strings.Join(ran, ",") != "http,store" {
		t.Fatalf("ran = %v", ran)
	}
}

func TestListenFailureReleasesOpenedResources(t *testing.T) {
	logger := testLogger(&bytes.Buffer{})
	var released []string
	release := func(name string) func(context.Context) error {
		return func(context.Context) error { released = append(released, name); return nil }
	}

	_, err := ListenAvailable(context.Background(), logger, "127.0.0.1", 0, 1)
	if err == nil {
		t.Fatal("expected invalid port error")
	}
	err = errors.Join(err, GracefulShutdown(logger, time.Second,
		release("cache"), release("amqp"), release("store")))
	if err == nil {
		t.Fatal("listen error must be kept")
	}
	if strings.Join(released, ",") != "cache,amqp,store" {
		t.Fatalf("released = %v", released)
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file: %v", err)
	}

	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("EXPENSES_CLI_TEST_VAR=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EXPENSES_CLI_TEST_VAR", "")
	os.Unsetenv("EXPENSES_CLI_TEST_VAR")
	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("EXPENSES_CLI_TEST_VAR"); got != "from-file" {
		t.Fatalf("var = %q", got)
	}
}

func TestLoadAndValidateConfig(t *testing.T) {
	t.Setenv("DATA_BACKEND", "nosuch")
	if _, err := LoadAndValidateConfig(); err == nil {
		t.Fatal("expected validation error")
	}

	t.Setenv("DATA_BACKEND", "memory")
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		t.Fatalf("LoadAndValidateConfig: %v", err)
	}
	if cfg.DataBackend != "memory" {
		t.Fatalf("backend = %q", cfg.DataBackend)
	}
}
