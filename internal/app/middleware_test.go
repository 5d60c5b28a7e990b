package app

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestLogging_PreservesStatusAndLogsBytes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	body := []byte("short and stout")
	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write(body)
	}), log)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/rooms", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status not preserved: %d", rec.Code)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line not JSON: %v (%q)", err, buf.String())
	}
	if line["msg"] != "http.request" {
		t.Fatalf("unexpected event: %v", line["msg"])
	}
	if line["path"] != "/api/chat/rooms" {
		t.Fatalf("unexpected path: %v", line["path"])
	}
	if status, ok := line["status"].(float64); !ok || int(status) != http.StatusTeapot {
		t.Fatalf("unexpected status attr: %v", line["status"])
	}
	if n, ok := line["bytes"].(float64); !ok || int(n) != len(body) {
		t.Fatalf("unexpected bytes attr: %v", line["bytes"])
	}
}

func TestWithRequestLogging_ProbesLogAtDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil)) // Info level

	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}), log)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	if buf.Len() != 0 {
		t.Fatalf("probe paths must not log at info: %q", buf.String())
	}

	var dbg bytes.Buffer
	log = slog.New(slog.NewJSONHandler(&dbg, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h = WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}), log)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var line map[string]any
	if err := json.Unmarshal(dbg.Bytes(), &line); err != nil {
		t.Fatalf("log line not JSON: %v (%q)", err, dbg.String())
	}
	if line["msg"] != "http.probe" {
		t.Fatalf("unexpected event: %v", line["msg"])
	}
}

// hijackableRecorder lets a handler take over the connection the way the
// websocket upgrade on /ws does.
type hijackableRecorder struct {
	*httptest.ResponseRecorder
}

func (r *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	_ = client.Close()
	return server, bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server)), nil
}

func TestWithRequestLogging_HijackedConnectionLogsUpgrade(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		_ = conn.Close()
	}), log)

	rec := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line not JSON: %v (%q)", err, buf.String())
	}
	if line["msg"] != "http.ws_upgrade" {
		t.Fatalf("unexpected event: %v", line["msg"])
	}
	if _, found := line["status"]; found {
		t.Fatalf("hijacked requests must not report a status: %v", line)
	}
}

func TestLoggingResponseWriter_OptionalInterfaces(t *testing.T) {
	t.Parallel()

	// httptest.ResponseRecorder implements Flusher but not Hijacker.
	rec := httptest.NewRecorder()
	lrw := &loggingResponseWriter{ResponseWriter: rec, status: http.StatusOK}

	var w http.ResponseWriter = lrw
	if _, ok := w.(http.Flusher); !ok {
		t.Fatalf("flusher not exposed")
	}
	if _, ok := w.(http.Hijacker); !ok {
		t.Fatalf("hijacker not exposed")
	}
	if _, _, err := lrw.Hijack(); err == nil {
		t.Fatalf("hijack should fail when underlying writer cannot hijack")
	}
	if lrw.hijacked {
		t.Fatalf("failed hijack must not mark the writer hijacked")
	}

	if _, ok := w.(io.ReaderFrom); !ok {
		t.Fatalf("readerFrom not exposed")
	}
}
