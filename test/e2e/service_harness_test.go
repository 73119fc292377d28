package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"logalert/internal/app"
	"logalert/internal/config"
	"logalert/test/testutil"
)

// writeServiceConfig writes one config file with a free listen port.
// Params: test handle and extra TOML sections appended after [service]/[http].
// Returns: config path and base URL of the API listener.
func writeServiceConfig(t *testing.T, mode, extra string) (string, string) {
	t.Helper()

	port, err := testutil.FreePort()
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	path := filepath.Join(t.TempDir(), "logalert.toml")
	content := fmt.Sprintf(`[service]
name = "logalert-e2e"
mode = %q

[http]
listen = "127.0.0.1:%d"

[log.console]
enabled = true
level = "error"

%s
`, mode, port, extra)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, fmt.Sprintf("http://127.0.0.1:%d", port)
}

// startService creates and runs a service until test cleanup.
// Params: test handle, config path and base URL.
// Returns: service is ready or test fails.
func startService(t *testing.T, path, baseURL string) {
	t.Helper()

	source, err := config.FromCLI(path, "")
	if err != nil {
		t.Fatalf("config source: %v", err)
	}
	service, err := app.NewService(source)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- service.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case runErr := <-done:
			if runErr != nil {
				t.Errorf("service run error: %v", runErr)
			}
		case <-time.After(8 * time.Second):
			t.Errorf("service did not stop after cancel")
		}
	})

	waitFor(t, 8*time.Second, func() bool {
		response, err := http.Get(baseURL + "/readyz")
		if err != nil {
			return false
		}
		defer response.Body.Close()
		return response.StatusCode == http.StatusOK
	})
}

// call sends one API request with full permissions.
// Params: method, URL and optional JSON body.
// Returns: status code and response body.
func call(t *testing.T, method, url string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	request, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	request.Header.Set("X-Permissions", "*")
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer response.Body.Close()
	payload, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return response.StatusCode, payload
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
