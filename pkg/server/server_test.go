package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/menta2k/imagesort/pkg/manifest"
)

type fixture struct {
	imageDir     string
	manifestPath string
}

func newFixture(t *testing.T, m manifest.Manifest) fixture {
	t.Helper()
	root := t.TempDir()
	f := fixture{
		imageDir:     filepath.Join(root, "image"),
		manifestPath: filepath.Join(root, "image_lists.json"),
	}

	files := map[string]string{
		"portrait/tall.webp":  "portrait-bytes",
		"landscape/wide.webp": "landscape-bytes",
		"landscape/next.webp": "next-bytes",
	}
	for key, content := range files {
		path := filepath.Join(f.imageDir, filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "secret.txt"), []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := manifest.Write(f.manifestPath, m); err != nil {
		t.Fatal(err)
	}
	return f
}

func defaultManifest() manifest.Manifest {
	return manifest.Manifest{
		SmallScreens: []string{"portrait/tall.webp"},
		LargeScreens: []string{"landscape/wide.webp"},
	}
}

func (f fixture) server(opts Options) *Server {
	opts.ImageDir = f.imageDir
	opts.ManifestPath = f.manifestPath
	if opts.Intn == nil {
		opts.Intn = func(int) int { return 0 }
	}
	return New(opts)
}

func do(s http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestRandomPicksBucketByUserAgent(t *testing.T) {
	s := newFixture(t, defaultManifest()).server(Options{})

	cases := []struct {
		ua   string
		body string
		url  string
	}{
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", "portrait-bytes", "http://example.com/portrait/tall.webp"},
		{"Mozilla/5.0 (Linux; ANDROID 14)", "portrait-bytes", "http://example.com/portrait/tall.webp"},
		{"Mozilla/5.0 (X11; Linux x86_64) Firefox/130.0", "landscape-bytes", "http://example.com/landscape/wide.webp"},
		{"", "landscape-bytes", "http://example.com/landscape/wide.webp"},
	}

	for _, tc := range cases {
		rec := do(s, http.MethodGet, "/", map[string]string{"User-Agent": tc.ua})
		if rec.Code != http.StatusOK {
			t.Fatalf("%q: expected 200, got %d", tc.ua, rec.Code)
		}
		if rec.Body.String() != tc.body {
			t.Errorf("%q: body = %q, want %q", tc.ua, rec.Body.String(), tc.body)
		}
		if got := rec.Header().Get("X-Image-URL"); got != tc.url {
			t.Errorf("%q: X-Image-URL = %q, want %q", tc.ua, got, tc.url)
		}
		if got := rec.Header().Get("Content-Type"); got != "image/webp" {
			t.Errorf("%q: Content-Type = %q", tc.ua, got)
		}
	}
}

func TestForcedBuckets(t *testing.T) {
	s := newFixture(t, defaultManifest()).server(Options{})
	desktop := map[string]string{"User-Agent": "Mozilla/5.0 (Windows NT 10.0)"}

	if rec := do(s, http.MethodGet, "/mobile/", desktop); rec.Body.String() != "portrait-bytes" {
		t.Errorf("/mobile/ should serve a portrait image, got %q", rec.Body.String())
	}
	if rec := do(s, http.MethodGet, "/pc", map[string]string{"User-Agent": "iPhone"}); rec.Body.String() != "landscape-bytes" {
		t.Errorf("/pc should serve a landscape image, got %q", rec.Body.String())
	}
}

func TestRandomUsesIntn(t *testing.T) {
	m := defaultManifest()
	m.LargeScreens = []string{"landscape/next.webp", "landscape/wide.webp"}
	s := newFixture(t, m).server(Options{Intn: func(n int) int { return n - 1 }})

	rec := do(s, http.MethodGet, "/pc", nil)
	if rec.Body.String() != "landscape-bytes" {
		t.Errorf("expected last key to be served, got %q", rec.Body.String())
	}
}

func TestJSONMode(t *testing.T) {
	m := defaultManifest()
	m.SmallScreens = []string{"./portrait/tall.webp"}
	s := newFixture(t, m).server(Options{BaseURL: "https://img.example.org/"})

	rec := do(s, http.MethodGet, "/mobile?json", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}

	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
	if payload["url"] != "https://img.example.org/portrait/tall.webp" {
		t.Errorf("url = %q", payload["url"])
	}
	if strings.Contains(rec.Body.String(), `\/`) {
		t.Errorf("slashes should not be escaped: %s", rec.Body.String())
	}
}

func TestStaticFileAndConditionalGet(t *testing.T) {
	s := newFixture(t, defaultManifest()).server(Options{})

	rec := do(s, http.MethodGet, "/landscape/wide.webp", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "landscape-bytes" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=86400" {
		t.Errorf("Cache-Control = %q", got)
	}
	etag := rec.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("expected weak ETag, got %q", etag)
	}

	rec = do(s, http.MethodGet, "/landscape/wide.webp", map[string]string{"If-None-Match": etag})
	if rec.Code != http.StatusNotModified {
		t.Errorf("expected 304, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("304 should have no body, got %q", rec.Body.String())
	}
}

func TestRejectsTraversal(t *testing.T) {
	s := newFixture(t, defaultManifest()).server(Options{})

	for _, target := range []string{
		"/portrait/../../secret.txt",
		"/portrait/%2e%2e/%2e%2e/secret.txt",
		"/landscape//wide.webp",
	} {
		rec := do(s, http.MethodGet, target, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "secret") {
			t.Errorf("%s: leaked file outside the image folder", target)
		}
	}
}

func TestNotFound(t *testing.T) {
	s := newFixture(t, defaultManifest()).server(Options{})

	for _, target := range []string{"/unknown", "/portrait/missing.webp", "/portrait"} {
		if rec := do(s, http.MethodGet, target, nil); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", target, rec.Code)
		}
	}
}

func TestCORSAndOptions(t *testing.T) {
	s := newFixture(t, defaultManifest()).server(Options{})

	rec := do(s, http.MethodOptions, "/anything", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("missing CORS header on OPTIONS, got %q", got)
	}

	rec = do(s, http.MethodGet, "/unknown", nil)
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("missing CORS header on 404, got %q", got)
	}
}

func TestErrors(t *testing.T) {
	m := defaultManifest()
	m.SmallScreens = []string{}
	f := newFixture(t, m)
	s := f.server(Options{})

	rec := do(s, http.MethodGet, "/mobile", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("empty bucket: expected 500, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), "Error: ") {
		t.Errorf("empty bucket: unexpected body %q", rec.Body.String())
	}

	if err := os.WriteFile(f.manifestPath, []byte(`{"small_screens": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	rec = do(f.server(Options{}), http.MethodGet, "/", nil)
	if rec.Code != http.StatusInternalServerError || !strings.HasPrefix(rec.Body.String(), "Error: ") {
		t.Errorf("invalid manifest: got %d %q", rec.Code, rec.Body.String())
	}
}

func TestManifestCache(t *testing.T) {
	f := newFixture(t, defaultManifest())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := f.server(Options{CacheTTL: time.Minute, Now: func() time.Time { return now }})

	if rec := do(s, http.MethodGet, "/pc", nil); rec.Body.String() != "landscape-bytes" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	updated := defaultManifest()
	updated.LargeScreens = []string{"landscape/next.webp"}
	if err := manifest.Write(f.manifestPath, updated); err != nil {
		t.Fatal(err)
	}

	now = now.Add(30 * time.Second)
	if rec := do(s, http.MethodGet, "/pc", nil); rec.Body.String() != "landscape-bytes" {
		t.Errorf("cached manifest should still be used, got %q", rec.Body.String())
	}

	now = now.Add(time.Minute)
	if rec := do(s, http.MethodGet, "/pc", nil); rec.Body.String() != "next-bytes" {
		t.Errorf("manifest should be reloaded after the TTL, got %q", rec.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newFixture(t, defaultManifest()).server(Options{})

	rec := do(s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("health: got %d %q", rec.Code, rec.Body.String())
	}

	do(s, http.MethodGet, "/mobile", nil)
	do(s, http.MethodGet, "/nope", nil)

	rec = do(s, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`imagesort_images_served_total{bucket="small_screens"} 1`,
		`imagesort_http_requests_total{code="404",route="not_found"} 1`,
		`imagesort_http_requests_total{code="200",route="health"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := newFixture(t, defaultManifest()).server(Options{})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/health")
	if err != nil {
		cancel()
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("unexpected health body %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
