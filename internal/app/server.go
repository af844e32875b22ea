package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	intrnl "chatline/internal"
	"chatline/internal/storage"
)

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr   string
	log    *slog.Logger
	server *http.Server
	store  *storage.Store
	core   *intrnl.Server
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Core exposes the chat server, mostly for tests.
func (h *ServerHandle) Core() *intrnl.Server {
	return h.core
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	err := h.server.Shutdown(ctx)
	h.cancel()
	return err
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// OpenStore opens the SQLite store at path and applies migrations.
func OpenStore(ctx context.Context, path string) (*storage.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	store, err := storage.NewStore(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// RunServer opens the store, starts the realtime gateway and serves HTTP in
// the background. Call Stop/Wait to manage its lifecycle.
func RunServer(ctx context.Context, log *slog.Logger, cfg ServerConfig) (*ServerHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = slog.Default()
	}
	cfg.SocketPath = NormalizeSocketPath(cfg.SocketPath)

	uploader, err := intrnl.NewDiskUploader(cfg.UploadDir, cfg.UploadBaseURL, cfg.MaxImageBytes)
	if err != nil {
		return nil, err
	}
	store, err := OpenStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	server := intrnl.NewServer(store, intrnl.ServerOptions{
		Logger:               log,
		Uploader:             uploader,
		JWTSecret:            []byte(cfg.JWTSecret),
		TokenTTL:             cfg.TokenTTL,
		SecureCookie:         cfg.SecureCookie,
		TrustHandshakeUserID: cfg.TrustHandshakeUserID,
		AllowedOrigin:        cfg.AllowedOrigin,
		TrustProxy:           cfg.TrustProxy,
		MaxImageBytes:        cfg.MaxImageBytes,
		AuthRateLimit:        cfg.AuthRateLimit,
		AuthRateWindow:       cfg.AuthRateWindow,
	})
	if cfg.TrustHandshakeUserID {
		log.Warn("socket handshake trusts the userId query parameter")
	}

	httpServer := &http.Server{
		Addr: cfg.Addr,
		Handler: server.Handler(intrnl.RouteOptions{
			SocketPath:  cfg.SocketPath,
			UploadsPath: uploadsRoute(cfg.UploadBaseURL),
			DebugRoutes: cfg.DebugRoutes,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	handle := &ServerHandle{
		addr:   listener.Addr().String(),
		log:    log,
		server: httpServer,
		store:  store,
		core:   server,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	gatewayDone := make(chan struct{})
	go func() {
		defer close(gatewayDone)
		server.Run(runCtx)
	}()
	go sweepSessions(runCtx, log, store, cfg.SessionSweep)

	go func() {
		select {
		case <-ctx.Done():
		case <-runCtx.Done():
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := handle.Stop(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	go handle.serve(listener, gatewayDone)

	log.Info("chatline server listening", "addr", handle.addr, "socket_path", cfg.SocketPath)
	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener, gatewayDone <-chan struct{}) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	h.cancel()
	<-gatewayDone
	if err := h.store.Close(); err != nil {
		h.log.Error("store close failed", "error", err)
	}
	h.err = err
}

// sweepSessions periodically deletes expired sessions.
func sweepSessions(ctx context.Context, log *slog.Logger, store *storage.Store, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.DeleteExpiredSessions(ctx, now)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Warn("session sweep failed", "error", err)
				}
				continue
			}
			if n > 0 {
				log.Debug("expired sessions removed", "count", n)
			}
		}
	}
}

// uploadsRoute maps a public base URL such as "/uploads" or
// "https://cdn.example.com/uploads" to the local mux prefix.
func uploadsRoute(baseURL string) string {
	path := baseURL
	if u, err := url.Parse(baseURL); err == nil {
		path = u.Path
	}
	if path == "" || path == "/" {
		return "/uploads/"
	}
	if path[0] != '/' {
		path = "/" + path
	}
	if path[len(path)-1] != '/' {
		path += "/"
	}
	return path
}
