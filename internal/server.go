package internal

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"chatline/internal/storage"
)

// ServerOptions carries everything NewServer needs besides the store.
type ServerOptions struct {
	Logger   *slog.Logger
	Uploader ImageUploader

	JWTSecret    []byte
	TokenTTL     time.Duration
	SecureCookie bool

	// TrustHandshakeUserID accepts the userId query parameter on the socket
	// handshake without verifying the session token.
	TrustHandshakeUserID bool
	AllowedOrigin        string
	MaxImageBytes        int64

	// TrustProxy keys rate limits on X-Forwarded-For instead of the peer
	// address. Only enable it behind a proxy that overwrites the header.
	TrustProxy bool

	AuthRateLimit  int
	AuthRateWindow time.Duration
}

// Server holds the HTTP handlers and the realtime core they feed.
type Server struct {
	log         *slog.Logger
	store       *storage.Store
	auth        *Authenticator
	uploader    ImageUploader
	registry    *Registry
	gateway     *Gateway
	dispatcher  *Dispatcher
	metrics     *Metrics
	authLimiter *RateLimiter
	upgrader    websocket.Upgrader

	trustHandshakeUserID bool
	trustProxy           bool
	allowedOrigin        string
	maxImageBytes        int64
}

func NewServer(store *storage.Store, opts ServerOptions) *Server {
	if opts.TokenTTL == 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.MaxImageBytes == 0 {
		opts.MaxImageBytes = 8 << 20
	}
	if opts.AuthRateLimit == 0 {
		opts.AuthRateLimit = 10
	}
	if opts.AuthRateWindow == 0 {
		opts.AuthRateWindow = time.Minute
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	metrics := NewMetrics()
	registry := NewRegistry()
	gateway := NewGateway(log.With("component", "gateway"), registry, metrics)
	s := &Server{
		log:         log,
		store:       store,
		auth:        NewAuthenticator(opts.JWTSecret, opts.TokenTTL, store, opts.SecureCookie),
		uploader:    opts.Uploader,
		registry:    registry,
		gateway:     gateway,
		dispatcher:  NewDispatcher(log.With("component", "dispatcher"), gateway, metrics),
		metrics:     metrics,
		authLimiter: NewRateLimiter(opts.AuthRateLimit, opts.AuthRateWindow),

		trustHandshakeUserID: opts.TrustHandshakeUserID,
		trustProxy:           opts.TrustProxy,
		allowedOrigin:        opts.AllowedOrigin,
		maxImageBytes:        opts.MaxImageBytes,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Run drives the realtime gateway until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	s.gateway.Run(ctx)
}

func (s *Server) Gateway() *Gateway { return s.gateway }

func (s *Server) MetricsHandler() http.Handler { return s.metrics }

func (s *Server) Uploads() http.Handler {
	if disk, ok := s.uploader.(*DiskUploader); ok {
		return disk.Handler()
	}
	return http.NotFoundHandler()
}

// authenticateRequest resolves the caller, mapping failures to ErrUnauthorized
// or errTokenExpired so handlers can pick a status.
func (s *Server) authenticateRequest(r *http.Request) (Identity, error) {
	return s.auth.Authenticate(r)
}

// requireAuth wraps a handler that needs an identity.
func (s *Server) requireAuth(next func(http.ResponseWriter, *http.Request, Identity)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.authenticateRequest(r)
		if err != nil {
			switch {
			case errors.Is(err, errTokenExpired):
				writeMessage(w, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, ErrUnauthorized):
				writeMessage(w, http.StatusUnauthorized, "Unauthorized - no valid token provided")
			default:
				s.log.Error("authenticate request failed", "error", err)
				writeMessage(w, http.StatusInternalServerError, "internal server error")
			}
			return
		}
		next(w, r, identity)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.allowedOrigin == "" || s.allowedOrigin == "*" {
		return true
	}
	return strings.EqualFold(origin, s.allowedOrigin)
}

// clientIP is the peer address, or the first X-Forwarded-For hop when the
// server runs behind a trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	if s.trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
