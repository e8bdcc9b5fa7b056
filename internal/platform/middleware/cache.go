package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// CacheStore is a response cache backend. Clear advances the store's
// generation; SetIfCurrent stores only while the generation read before the
// response was built is still current, so a read racing a write cannot
// repopulate the cache with pre-write data.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	SetIfCurrent(ctx context.Context, gen uint64, key string, value []byte, ttl time.Duration) bool
	Generation(ctx context.Context) (uint64, bool)
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context) error
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// InMemoryCacheStore is a process-local CacheStore with lazy expiration.
type InMemoryCacheStore struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	gen     uint64
}

func NewInMemoryCacheStore() *InMemoryCacheStore {
	return &InMemoryCacheStore{entries: make(map[string]*cacheEntry)}
}

func (s *InMemoryCacheStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false
	}
	return entry.data, true
}

func (s *InMemoryCacheStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &cacheEntry{data: value, expiresAt: time.Now().Add(ttl)}
}

func (s *InMemoryCacheStore) SetIfCurrent(_ context.Context, gen uint64, key string, value []byte, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.entries[key] = &cacheEntry{data: value, expiresAt: time.Now().Add(ttl)}
	return true
}

func (s *InMemoryCacheStore) Generation(_ context.Context) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen, true
}

func (s *InMemoryCacheStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *InMemoryCacheStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*cacheEntry)
	s.gen++
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (s *InMemoryCacheStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StartCleanup evicts expired entries every interval until ctx is done.
func (s *InMemoryCacheStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				s.mu.Lock()
				for k, v := range s.entries {
					if now.After(v.expiresAt) {
						delete(s.entries, k)
					}
				}
				s.mu.Unlock()
			}
		}
	}()
}

// bufferedResponseWriter holds the body back until the middleware decides
// what to do with it.
type bufferedResponseWriter struct {
	writer     http.ResponseWriter
	buf        bytes.Buffer
	statusCode int
}

func newBufferedResponseWriter(w http.ResponseWriter) *bufferedResponseWriter {
	return &bufferedResponseWriter{writer: w, statusCode: http.StatusOK}
}

func (w *bufferedResponseWriter) Header() http.Header { return w.writer.Header() }

func (w *bufferedResponseWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }

func (w *bufferedResponseWriter) WriteHeader(code int) { w.statusCode = code }

func (w *bufferedResponseWriter) flushTo() error {
	w.writer.WriteHeader(w.statusCode)
	if w.buf.Len() == 0 {
		return nil
	}
	_, err := w.writer.Write(w.buf.Bytes())
	return err
}

type cachedResponse struct {
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// ResponseCacheConfig configures ResponseCache.
type ResponseCacheConfig struct {
	Store     CacheStore
	TTL       time.Duration
	SkipPaths []string
}

// ResponseCache serves repeated GETs from the store. Only 200 responses are
// stored; the key includes the query string. Writers are expected to clear
// the store when the underlying data changes.
func ResponseCache(cfg ResponseCacheConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet || shouldSkip(req.URL.Path, cfg.SkipPaths) {
				return next(c)
			}

			ctx := req.Context()
			key := cacheKey(req)
			if raw, ok := cfg.Store.Get(ctx, key); ok {
				var cached cachedResponse
				if err := json.Unmarshal(raw, &cached); err == nil {
					c.Response().Header().Set("X-Cache", "HIT")
					return c.Blob(http.StatusOK, cached.ContentType, cached.Body)
				}
				cfg.Store.Delete(ctx, key)
			}

			gen, genOK := cfg.Store.Generation(ctx)
			res := c.Response()
			origWriter := res.Writer
			buf := newBufferedResponseWriter(origWriter)
			res.Writer = buf

			err := next(c)
			res.Writer = origWriter
			if err != nil {
				return err
			}

			if genOK && buf.statusCode == http.StatusOK {
				raw, mErr := json.Marshal(cachedResponse{
					ContentType: res.Header().Get(echo.HeaderContentType),
					Body:        buf.buf.Bytes(),
				})
				if mErr == nil {
					cfg.Store.SetIfCurrent(ctx, gen, key, raw, cfg.TTL)
				}
			}
			res.Header().Set("X-Cache", "MISS")
			return buf.flushTo()
		}
	}
}

func cacheKey(req *http.Request) string {
	return req.Method + ":" + req.URL.RequestURI()
}
