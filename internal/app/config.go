package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// ServerConfig defines how the HTTP/WebSocket backend should run.
type ServerConfig struct {
	Addr       string `env:"CHATLINE_ADDR,default=:5001"`
	SocketPath string `env:"CHATLINE_SOCKET_PATH,default=/socket"`
	DBPath     string `env:"CHATLINE_DB_PATH"`

	JWTSecret string        `env:"CHATLINE_JWT_SECRET"`
	TokenTTL  time.Duration `env:"CHATLINE_TOKEN_TTL,default=24h"`

	UploadDir     string `env:"CHATLINE_UPLOAD_DIR"`
	UploadBaseURL string `env:"CHATLINE_UPLOAD_BASE_URL,default=/uploads"`
	MaxImageBytes int64  `env:"CHATLINE_MAX_IMAGE_BYTES,default=8388608"`

	SecureCookie         bool   `env:"CHATLINE_SECURE_COOKIE,default=true"`
	TrustHandshakeUserID bool   `env:"CHATLINE_TRUST_HANDSHAKE_USER_ID,default=false"`
	DebugRoutes          bool   `env:"CHATLINE_DEBUG_ROUTES,default=false"`
	AllowedOrigin        string `env:"CHATLINE_ALLOWED_ORIGIN,default=http://localhost:5173"`
	TrustProxy           bool   `env:"CHATLINE_TRUST_PROXY,default=false"`

	AuthRateLimit  int           `env:"CHATLINE_AUTH_RATE_LIMIT,default=10"`
	AuthRateWindow time.Duration `env:"CHATLINE_AUTH_RATE_WINDOW,default=1m"`
	SessionSweep   time.Duration `env:"CHATLINE_SESSION_SWEEP,default=1h"`

	LogLevel string `env:"CHATLINE_LOG_LEVEL,default=INFO"`
}

// LoadServerConfig reads an optional .env file and then the environment.
func LoadServerConfig(dotenvFiles ...string) (ServerConfig, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load(dotenvFiles...)

	var cfg ServerConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("read environment: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = DefaultUploadDir()
	}
	cfg.SocketPath = NormalizeSocketPath(cfg.SocketPath)
	return cfg, nil
}

// Validate reports settings the server cannot start with.
func (c ServerConfig) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("CHATLINE_JWT_SECRET must be at least 16 characters"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token TTL must be positive"))
	}
	if c.MaxImageBytes <= 0 {
		errs = append(errs, errors.New("max image bytes must be positive"))
	}
	return errors.Join(errs...)
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	return filepath.Join(dataDir(), "chatline.db")
}

// DefaultUploadDir returns where hosted images live when none is configured.
func DefaultUploadDir() string {
	return filepath.Join(dataDir(), "uploads")
}

func dataDir() string {
	if env := os.Getenv("CHATLINE_DATA_DIR"); env != "" {
		return env
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatline")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Chatline")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Chatline")
		}
		return filepath.Join(home, ".local", "share", "chatline")
	}
	return filepath.Join(".", ".chatline")
}

// NormalizeSocketPath guarantees the socket path starts with '/' and
// falls back to /socket when empty.
func NormalizeSocketPath(path string) string {
	if path == "" {
		return "/socket"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
