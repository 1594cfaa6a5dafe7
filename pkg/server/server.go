// Package server serves random images from the converted folders, picking the
// manifest bucket that suits the requesting device.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/menta2k/imagesort/internal/logging"
	"github.com/menta2k/imagesort/pkg/manifest"
	"github.com/menta2k/imagesort/pkg/orientation"
)

const (
	// DefaultCacheTTL is how long a loaded manifest is reused.
	DefaultCacheTTL = 10 * time.Minute

	cacheControl    = "public, max-age=86400"
	shutdownTimeout = 10 * time.Second
)

var mobileUA = regexp.MustCompile(`(?i)(android|iphone|ipad|ipod|blackberry|windows phone)`)

// Options configures a Server.
type Options struct {
	// ImageDir is the base folder that manifest keys are relative to.
	ImageDir string
	// ManifestPath is the image list JSON.
	ManifestPath string
	// BaseURL prefixes image URLs. Empty means the request origin.
	BaseURL string
	// CacheTTL bounds how long the manifest is cached. Zero reloads it on
	// every request.
	CacheTTL time.Duration
	Logger   *slog.Logger
	// Intn picks an index in [0, n). Defaults to math/rand/v2.
	Intn func(n int) int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server is an http.Handler for the random image endpoints.
type Server struct {
	opts    Options
	logger  *slog.Logger
	metrics *metrics

	mu       sync.Mutex
	cached   *manifest.Manifest
	loadedAt time.Time
}

type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	served   *prometheus.CounterVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagesort",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		served: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagesort",
			Name:      "images_served_total",
			Help:      "Random images picked per manifest bucket.",
		}, []string{"bucket"}),
	}
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Intn == nil {
		opts.Intn = rand.IntN
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")

	return &Server{
		opts:    opts,
		logger:  logging.OrNop(opts.Logger),
		metrics: newMetrics(),
	}
}

// ServeHTTP routes a request and records it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	setCORS(rec.Header())

	route := s.route(rec, r)
	s.metrics.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) string {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return "options"
	}

	p := strings.TrimRight(r.URL.Path, "/")
	if p == "" {
		p = "/"
	}

	switch {
	case p == "/":
		s.handleRandom(w, r, mobileUA.MatchString(r.UserAgent()))
		return "random"
	case p == "/mobile":
		s.handleRandom(w, r, true)
		return "mobile"
	case p == "/pc":
		s.handleRandom(w, r, false)
		return "pc"
	case p == "/health":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
		return "health"
	case p == "/metrics":
		promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
		return "metrics"
	case strings.HasPrefix(p, "/"+orientation.Portrait.Dir()+"/"),
		strings.HasPrefix(p, "/"+orientation.Landscape.Dir()+"/"):
		s.serveFile(w, r, strings.TrimPrefix(p, "/"))
		return "static"
	default:
		writeText(w, http.StatusNotFound, "Not Found")
		return "not_found"
	}
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request, mobile bool) {
	m, err := s.manifest()
	if err != nil {
		s.logger.Error("failed to load manifest", "path", s.opts.ManifestPath, "error", err)
		writeText(w, http.StatusInternalServerError, "Error: "+err.Error())
		return
	}

	bucket := orientation.LargeScreens
	if mobile {
		bucket = orientation.SmallScreens
	}
	keys := m.Bucket(bucket)
	if len(keys) == 0 {
		writeText(w, http.StatusInternalServerError, "Error: no images found in "+bucket)
		return
	}

	key := strings.TrimPrefix(keys[s.opts.Intn(len(keys))], "./")
	imageURL := s.baseURL(r) + "/" + (&url.URL{Path: key}).EscapedPath()
	s.metrics.served.WithLabelValues(bucket).Inc()
	s.logger.Debug("picked image", "bucket", bucket, "key", key)

	if _, ok := r.URL.Query()["json"]; ok {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		_ = enc.Encode(map[string]string{"url": imageURL})
		return
	}

	w.Header().Set("X-Image-URL", imageURL)
	s.serveFile(w, r, key)
}

// serveFile writes the image stored under key. ServeContent answers
// conditional requests against the weak ETag.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, key string) {
	full, ok := s.resolve(key)
	if !ok {
		writeText(w, http.StatusBadRequest, "Bad Request")
		return
	}

	f, err := os.Open(full)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("failed to open image", "path", full, "error", err)
		}
		writeText(w, http.StatusNotFound, "Not Found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeText(w, http.StatusNotFound, "Not Found")
		return
	}

	h := w.Header()
	h.Set("Content-Type", contentType(key))
	h.Set("Cache-Control", cacheControl)
	h.Set("ETag", fmt.Sprintf(`W/"%x-%x"`, info.ModTime().UnixNano(), info.Size()))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// resolve maps a slash separated key to a file under ImageDir. Keys that are
// not already clean, or that climb out of ImageDir, are refused.
func (s *Server) resolve(key string) (string, bool) {
	if key == "" || strings.ContainsAny(key, "\\\x00") {
		return "", false
	}
	if path.Clean("/"+key) != "/"+key {
		return "", false
	}

	base := filepath.Clean(s.opts.ImageDir)
	full := filepath.Join(base, filepath.FromSlash(key))
	rel, err := filepath.Rel(base, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

func (s *Server) manifest() (manifest.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	if s.cached != nil && s.opts.CacheTTL > 0 && now.Sub(s.loadedAt) < s.opts.CacheTTL {
		return *s.cached, nil
	}

	m, err := manifest.Load(s.opts.ManifestPath)
	if err != nil {
		return manifest.Manifest{}, err
	}
	s.cached = &m
	s.loadedAt = now
	return m, nil
}

func (s *Server) baseURL(r *http.Request) string {
	if s.opts.BaseURL != "" {
		return s.opts.BaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "address", listener.Addr().String())
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".webp":
		return "image/webp"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.status = code
		r.written = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.written = true
	return r.ResponseWriter.Write(b)
}
