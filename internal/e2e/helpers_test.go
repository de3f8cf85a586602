package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"testing"

	"elementd/internal/config"
	"elementd/internal/httpapi"
	"elementd/internal/registry"
	"elementd/internal/service"
)

// writeElementsDir writes name -> yaml body files into a temp directory.
func writeElementsDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write element %s: %v", p, err)
		}
	}
	return dir
}

// upstream serves fixed payloads by path and counts requests.
type upstream struct {
	*httptest.Server
	hits atomic.Int64
}

func newUpstream(t *testing.T, payloads map[string][]byte) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		b, ok := payloads[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", mime.TypeByExtension(path.Ext(r.URL.Path)))
		_, _ = w.Write(b)
	}))
	t.Cleanup(u.Close)
	return u
}

// newServer seeds a service from dir and serves it. Events are applied only
// when the test calls svc.Events().Tick.
func newServer(t *testing.T, dir string, mutate func(*config.Config)) (*httptest.Server, *service.Service) {
	t.Helper()
	cfg := config.Default()
	cfg.ElementsDir = dir
	if mutate != nil {
		mutate(&cfg)
	}
	scfg := service.ConfigFrom(cfg, nil)
	scfg.Events.ManualFlush = true
	svc := service.New(scfg)
	t.Cleanup(svc.Close)

	els, err := registry.LoadDir(dir)
	if err != nil {
		t.Fatalf("load elements: %v", err)
	}
	if err := svc.Seed(context.Background(), els); err != nil {
		t.Fatalf("seed: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(svc))
	t.Cleanup(srv.Close)
	return srv, svc
}

func do(t *testing.T, method, url string, hdr map[string]string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpGet(t *testing.T, url string, hdr map[string]string) (*http.Response, []byte) {
	t.Helper()
	return do(t, http.MethodGet, url, hdr, nil)
}

func httpPostJSON(t *testing.T, url string, payload string) (*http.Response, []byte) {
	t.Helper()
	return do(t, http.MethodPost, url, nil, []byte(payload))
}

func decode(t *testing.T, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("json: %v (body=%s)", err, body)
	}
}
