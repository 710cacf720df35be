package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ===== Session/JWT primitives =====

type AuthConfig struct {
	HMACSecret   []byte
	CookieName   string
	SecureCookie bool
	TTL          time.Duration
}

// AuthManager issues and checks admin session tokens. The API key is only
// exchanged once for a short-lived JWT.
type AuthManager struct {
	cfg    AuthConfig
	apiKey string
}

func NewAuthManager(apiKey, secret string, secure bool, ttl time.Duration) *AuthManager {
	return &AuthManager{apiKey: apiKey, cfg: AuthConfig{
		HMACSecret:   []byte(secret),
		CookieName:   "admin_session",
		SecureCookie: secure,
		TTL:          ttl,
	}}
}

// Enabled reports whether both the API key and signing secret are configured.
func (a *AuthManager) Enabled() bool {
	return a != nil && a.apiKey != "" && len(a.cfg.HMACSecret) > 0
}

// CheckKey compares key against the configured admin API key.
func (a *AuthManager) CheckKey(key string) bool {
	if !a.Enabled() || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(a.apiKey)) == 1
}

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Mint signs a session token and sets it as an HttpOnly cookie.
func (a *AuthManager) Mint(w http.ResponseWriter) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TTL)),
			Subject:   "admin",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.cfg.HMACSecret)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(a.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   a.cfg.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	return signed, nil
}

func (a *AuthManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cfg.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*AdminClaims, error) {
	// Authorization: Bearer <jwt>
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
			return a.parse(strings.TrimSpace(hdr[7:]))
		}
	}
	if c, err := r.Cookie(a.cfg.CookieName); err == nil {
		return a.parse(c.Value)
	}
	return nil, errors.New("missing token")
}

func (a *AuthManager) parse(tok string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.cfg.HMACSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid || claims.Role != "admin" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// RequireAdmin rejects requests without a valid admin session.
func (a *AuthManager) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			writeJSONError(w, http.StatusForbidden, apiError{Code: "admin_disabled", Message: "admin access is not configured"})
			return
		}
		if _, err := a.ParseFromRequest(r); err != nil {
			writeJSONError(w, http.StatusUnauthorized, apiError{Code: "unauthorized", Message: err.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}
