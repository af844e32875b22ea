package internal

import "net/http"

// RouteOptions selects the optional parts of the HTTP surface.
type RouteOptions struct {
	SocketPath  string
	UploadsPath string
	DebugRoutes bool
}

// Routes registers every endpoint on a fresh mux.
func (s *Server) Routes(opts RouteOptions) *http.ServeMux {
	if opts.SocketPath == "" {
		opts.SocketPath = "/socket"
	}
	if opts.UploadsPath == "" {
		opts.UploadsPath = "/uploads/"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+opts.SocketPath, s.ServeWS)

	mux.HandleFunc("POST /api/auth/signup", s.HandleSignup)
	mux.HandleFunc("POST /api/auth/login", s.HandleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.HandleLogout)
	mux.HandleFunc("GET /api/auth/check", s.requireAuth(s.HandleCheckAuth))
	mux.HandleFunc("PUT /api/auth/update-profile", s.requireAuth(s.HandleUpdateProfile))

	mux.HandleFunc("GET /api/messages/user", s.requireAuth(s.HandleSidebarUsers))
	mux.HandleFunc("GET /api/messages/{id}", s.requireAuth(s.HandleConversation))
	mux.HandleFunc("POST /api/messages/send/{id}", s.requireAuth(s.HandleSendMessage))

	if opts.DebugRoutes {
		mux.HandleFunc("GET /api/debug/auth-status", s.requireAuth(s.HandleAuthStatus))
		mux.HandleFunc("GET /api/debug/socket-status", s.requireAuth(s.HandleSocketStatus))
		mux.HandleFunc("POST /api/debug/test-socket", s.requireAuth(s.HandleTestSocket))
	}

	mux.Handle(opts.UploadsPath, http.StripPrefix(opts.UploadsPath, s.Uploads()))
	mux.Handle("GET /metrics", s.MetricsHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Handler wraps the routes with CORS and request logging.
func (s *Server) Handler(opts RouteOptions) http.Handler {
	return chainMiddlewares(s.Routes(opts), WithCORS(s.allowedOrigin), WithLogging(s.log))
}
