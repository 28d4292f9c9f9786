package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"pushbridge/internal/metrics"
	"pushbridge/internal/storage"
	logx "pushbridge/pkg/logx"
)

type pingIngress struct{}

func (pingIngress) Mount(r chi.Router) {
	r.Post("/v1/platform/broadcast", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, rd))
	return rec
}

func TestRoutes(t *testing.T) {
	t.Parallel()
	m := metrics.New()
	s := New(Config{}, Deps{
		Ingress:  pingIngress{},
		Attached: func() bool { return true },
		Store:    storage.NewMemory(),
		Metrics:  m,
	}, logx.Nop())
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"consumer_attached":true`) {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body)
	}

	if rec := do(t, h, http.MethodPost, "/v1/platform/broadcast", "{}"); rec.Code != http.StatusAccepted {
		t.Fatalf("ingress = %d", rec.Code)
	}

	if rec := do(t, h, http.MethodGet, "/v1/consumer", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("consumer route without websocket = %d, want 404", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `pushbridge_http_requests_total{method="POST",path="/v1/platform/broadcast",status="202"} 1`) {
		t.Fatalf("metrics output missing request counter:\n%s", rec.Body)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	t.Parallel()
	s := New(Config{}, Deps{Store: storage.NewMemory()}, logx.Nop())
	h := s.Handler()
	const path = "/v1/settings/Interfone/INTERFONE_LIGACAO"

	read := func() bool {
		t.Helper()
		rec := do(t, h, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET = %d", rec.Code)
		}
		var body flagBody
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.Value == nil {
			t.Fatalf("GET body = %s (%v)", rec.Body, err)
		}
		return *body.Value
	}

	if read() {
		t.Fatal("unset flag should read false")
	}
	if rec := do(t, h, http.MethodPut, path, `{"value":true}`); rec.Code != http.StatusOK {
		t.Fatalf("PUT = %d %s", rec.Code, rec.Body)
	}
	if !read() {
		t.Fatal("flag should read true after PUT")
	}
	for _, bad := range []string{`{}`, `{"value":"yes"}`, `nope`} {
		if rec := do(t, h, http.MethodPut, path, bad); rec.Code != http.StatusBadRequest {
			t.Fatalf("PUT %s = %d, want 400", bad, rec.Code)
		}
	}
}

func TestSettingsWithoutStore(t *testing.T) {
	t.Parallel()
	h := New(Config{}, Deps{}, logx.Nop()).Handler()
	if rec := do(t, h, http.MethodPut, "/v1/settings/a/b", `{"value":true}`); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("PUT without store = %d, want 503", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/settings/a/b", ""); rec.Code != http.StatusOK {
		t.Fatalf("GET without store = %d, want 200", rec.Code)
	}
}

func TestListenServeShutdown(t *testing.T) {
	t.Parallel()
	s := New(Config{Addr: "127.0.0.1:0"}, Deps{}, logx.Nop())
	if err := s.Serve(context.Background()); err == nil {
		t.Fatal("Serve before Listen should fail")
	}
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx) }()

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
