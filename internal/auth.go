package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"chatline/internal/storage"
)

const (
	sessionCookieName = "jwt"
	tokenIssuer       = "chatline"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	errTokenExpired = errors.New("token expired")
)

// SessionStore persists issued token ids so logout can revoke them.
type SessionStore interface {
	CreateSession(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetSession(ctx context.Context, token string) (*storage.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// Identity is what a verified request resolves to.
type Identity struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

type sessionClaims struct {
	UserID string `json:"userID"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HS256 session tokens carried in the
// jwt cookie or an Authorization bearer header.
type Authenticator struct {
	secret       []byte
	ttl          time.Duration
	sessions     SessionStore
	secureCookie bool
	now          func() time.Time
}

func NewAuthenticator(secret []byte, ttl time.Duration, sessions SessionStore, secureCookie bool) *Authenticator {
	return &Authenticator{
		secret:       secret,
		ttl:          ttl,
		sessions:     sessions,
		secureCookie: secureCookie,
		now:          time.Now,
	}
}

// Issue signs a new token for userID and records its session.
func (a *Authenticator) Issue(ctx context.Context, userID string) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(a.ttl)
	claims := sessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	if err := a.sessions.CreateSession(ctx, userID, claims.ID, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("store session: %w", err)
	}
	return signed, expiresAt, nil
}

// Authenticate resolves the request's token to an identity.
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	raw := tokenFromRequest(r)
	if raw == "" {
		return Identity{}, ErrUnauthorized
	}
	claims, err := a.parse(raw)
	if err != nil {
		return Identity{}, err
	}
	session, err := a.sessions.GetSession(r.Context(), claims.ID)
	if err != nil {
		return Identity{}, fmt.Errorf("load session: %w", err)
	}
	if session == nil || session.UserID != claims.UserID {
		return Identity{}, ErrUnauthorized
	}
	return Identity{UserID: claims.UserID, SessionID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Revoke drops the session behind the request's token, if it has a valid one.
func (a *Authenticator) Revoke(r *http.Request) error {
	raw := tokenFromRequest(r)
	if raw == "" {
		return nil
	}
	claims, err := a.parse(raw)
	if err != nil {
		return nil
	}
	return a.sessions.DeleteSession(r.Context(), claims.ID)
}

func (a *Authenticator) parse(raw string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errTokenExpired
		}
		return nil, ErrUnauthorized
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// SetCookie writes the session cookie the browser client relies on.
func (a *Authenticator) SetCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(a.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   a.secureCookie,
	})
}

// ClearCookie expires the session cookie.
func (a *Authenticator) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   a.secureCookie,
	})
}

func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}
