// Package web provides the HTTP API and status page for the VitiBrasil datasets.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/vitibrasil/internal/auth"
	"github.com/JonMunkholm/vitibrasil/internal/config"
	"github.com/JonMunkholm/vitibrasil/internal/core"
	"github.com/JonMunkholm/vitibrasil/internal/history"
	webmw "github.com/JonMunkholm/vitibrasil/internal/web/middleware"
)

// Options configures a Server. Zero values disable the feature.
type Options struct {
	Auth           *auth.Issuer  // nil serves the API without login
	History        history.Store // nil hides /vitibrasil/historico
	RateLimit      config.RateLimitConfig
	Security       config.SecurityConfig
	RequestTimeout time.Duration // Default 2m
}

// Server is the HTTP server for the dataset API.
type Server struct {
	service  *core.Service
	opts     Options
	router   *chi.Mux
	server   *http.Server
	limiters []*rateLimiter
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	s := &Server{
		service: service,
		opts:    opts,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(webmw.TrustedRealIP(s.opts.Security.TrustedProxies))
	s.router.Use(webmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.opts.RequestTimeout))

	// Security hardening
	s.router.Use(securityHeaders(s.opts.Security.EnableCSP))

	if s.opts.RateLimit.Enabled {
		s.router.Use(s.newLimiter(s.opts.RateLimit.RequestsPerMinute).middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Pages
	s.router.Get("/", s.handleStatusPage)
	s.router.Get("/health", s.handleHealth)

	// Cache operations and login get a tighter limit
	strict := func(h http.HandlerFunc) http.Handler { return h }
	if s.opts.RateLimit.Enabled && s.opts.RateLimit.LoadLimit > 0 {
		strict = s.newLimiter(s.opts.RateLimit.LoadLimit).wrap
	}

	if s.opts.Auth != nil {
		s.router.Method(http.MethodPost, "/login", strict(s.handleLogin))
	}

	s.router.Route("/vitibrasil", func(r chi.Router) {
		if s.opts.Auth != nil {
			r.Use(webmw.BearerAuth(s.opts.Auth))
		}

		// Cache control
		r.Method(http.MethodGet, "/carrega_csv", strict(s.handleLoad))
		r.Method(http.MethodGet, "/limpa_cache", strict(s.handleClear))
		r.Get("/status", s.handleStatus)
		r.Get("/historico", s.handleHistory)

		// Queries
		r.Get("/producao", s.handleProduction)
		r.Get("/producao_por_categoria", s.handleProductionByCategory)
		r.Get("/comercializacao", s.handleCommercialization)
		r.Get("/processamento/{grapeType}", s.handleProcessing)
		r.Get("/importacao/{category}", s.handleTrade(core.Import))
		r.Get("/exportacao/{category}", s.handleTrade(core.Export))
		r.Get("/anos/{dataset}", s.handleYears)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(cfg *config.ServerConfig) error {
	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	slog.Info("starting server", "addr", cfg.Addr())
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, l := range s.limiters {
		l.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME type sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Prevent clickjacking
			w.Header().Set("X-Frame-Options", "DENY")

			// The status page has inline styles and no scripts
			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'")
			}

			// Control referrer information
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) newLimiter(rate int) *rateLimiter {
	rl := newRateLimiter(rate, time.Minute)
	s.limiters = append(s.limiters, rl)
	return rl
}

// rateLimiter implements a simple token bucket rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
	done     chan struct{}
	once     sync.Once
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		done:     make(chan struct{}),
	}
	// Start cleanup goroutine
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every minute until stop is called.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
		}
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *rateLimiter) stop() {
	rl.once.Do(func() { close(rl.done) })
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:    rl.rate - 1, // consume one token
			lastReset: time.Now(),
		}
		return true
	}

	// Reset tokens if window has passed
	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}

	// Check if we have tokens left
	if v.tokens <= 0 {
		return false
	}

	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by IP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "Limite de requisições excedido. Tente novamente mais tarde.",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *rateLimiter) wrap(h http.HandlerFunc) http.Handler {
	return rl.middleware(h)
}

// clientIP returns the host part of RemoteAddr, already rewritten by
// TrustedRealIP when the request came through a trusted proxy.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// writeJSON encodes v as JSON with non-ASCII characters left as is.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
