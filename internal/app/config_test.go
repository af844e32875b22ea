package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadServerConfig_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("CHATLINE_DATA_DIR", t.TempDir())
	t.Setenv("CHATLINE_JWT_SECRET", "0123456789abcdef")

	cfg, err := LoadServerConfig("does-not-exist.env")

	req.NoError(err)
	req.Equal(":5001", cfg.Addr)
	req.Equal("/socket", cfg.SocketPath)
	req.Equal(24*time.Hour, cfg.TokenTTL)
	req.EqualValues(8<<20, cfg.MaxImageBytes)
	req.True(cfg.SecureCookie)
	req.False(cfg.TrustHandshakeUserID)
	req.False(cfg.DebugRoutes)
	req.False(cfg.TrustProxy)
	req.Equal(10, cfg.AuthRateLimit)
	req.Contains(cfg.DBPath, "chatline.db")
	req.Contains(cfg.UploadDir, "uploads")
	req.NoError(cfg.Validate())
}

func TestLoadServerConfig_Overrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("CHATLINE_ADDR", "127.0.0.1:9000")
	t.Setenv("CHATLINE_SOCKET_PATH", "ws")
	t.Setenv("CHATLINE_DB_PATH", "/tmp/custom.db")
	t.Setenv("CHATLINE_TOKEN_TTL", "2h")
	t.Setenv("CHATLINE_TRUST_HANDSHAKE_USER_ID", "true")
	t.Setenv("CHATLINE_DEBUG_ROUTES", "true")
	t.Setenv("CHATLINE_TRUST_PROXY", "true")

	cfg, err := LoadServerConfig("does-not-exist.env")

	req.NoError(err)
	req.Equal("127.0.0.1:9000", cfg.Addr)
	req.Equal("/ws", cfg.SocketPath)
	req.Equal("/tmp/custom.db", cfg.DBPath)
	req.Equal(2*time.Hour, cfg.TokenTTL)
	req.True(cfg.TrustHandshakeUserID)
	req.True(cfg.DebugRoutes)
	req.True(cfg.TrustProxy)
}

func TestServerConfig_Validate(t *testing.T) {
	req := require.New(t)
	cfg := ServerConfig{DBPath: "x.db", JWTSecret: "short", TokenTTL: time.Hour, MaxImageBytes: 1}

	err := cfg.Validate()

	req.ErrorContains(err, "CHATLINE_JWT_SECRET")
}

func TestNormalizeSocketPath(t *testing.T) {
	req := require.New(t)
	req.Equal("/socket", NormalizeSocketPath(""))
	req.Equal("/live", NormalizeSocketPath("live"))
	req.Equal("/live", NormalizeSocketPath("/live"))
}

func TestUploadsRoute(t *testing.T) {
	req := require.New(t)
	req.Equal("/uploads/", uploadsRoute(""))
	req.Equal("/uploads/", uploadsRoute("/uploads"))
	req.Equal("/static/img/", uploadsRoute("https://cdn.example.com/static/img"))
}
