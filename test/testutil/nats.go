package testutil

import (
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// ExternalNATSEnv names an already running JetStream server used instead of a spawned one.
const ExternalNATSEnv = "LOGALERT_NATS_URL"

// FreePort reserves a local TCP port and returns it to the caller.
func FreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// StartLocalNATSServer provides a JetStream endpoint for store integration tests.
// An external server from LOGALERT_NATS_URL wins; otherwise nats-server is spawned
// on a free port with a temp store dir, and the test is skipped when the binary is missing.
// Returns: server URL and idempotent stop callback.
func StartLocalNATSServer(tb testing.TB) (string, func()) {
	tb.Helper()

	if external := strings.TrimSpace(os.Getenv(ExternalNATSEnv)); external != "" {
		WaitForNATSReady(tb, external, 3*time.Second)
		return external, func() {}
	}

	binary, err := exec.LookPath("nats-server")
	if err != nil {
		tb.Skipf("nats-server is required for store integration test: %v", err)
	}

	port, err := FreePort()
	if err != nil {
		tb.Fatalf("free port: %v", err)
	}

	cmd := exec.Command(binary, "-js", "-a", "127.0.0.1", "-p", strconv.Itoa(port), "-sd", tb.TempDir())
	if err := cmd.Start(); err != nil {
		tb.Skipf("start nats-server: %v", err)
	}

	url := "nats://127.0.0.1:" + strconv.Itoa(port)
	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			_ = cmd.Process.Signal(syscall.SIGTERM)
			done := make(chan struct{})
			go func() {
				_, _ = cmd.Process.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				_ = cmd.Process.Kill()
				<-done
			}
		})
	}
	tb.Cleanup(stop)

	WaitForNATSReady(tb, url, 8*time.Second)
	return url, stop
}

// WaitForNATSReady polls until the endpoint accepts connections with JetStream enabled.
func WaitForNATSReady(tb testing.TB, url string, timeout time.Duration) {
	tb.Helper()

	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		nc, err := nats.Connect(url, nats.Timeout(time.Second))
		if err == nil {
			js, jsErr := nc.JetStream()
			if jsErr == nil {
				_, jsErr = js.AccountInfo()
			}
			nc.Close()
			if jsErr == nil {
				return
			}
			err = jsErr
		}
		lastErr = err
		time.Sleep(100 * time.Millisecond)
	}
	tb.Fatalf("jetstream did not become ready at %s: %v", url, lastErr)
}
