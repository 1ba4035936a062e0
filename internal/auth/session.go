package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultSessionTTL = 7 * 24 * time.Hour
	stateTokenTTL     = 10 * time.Minute

	sessionAudience = "guildvote-api"
	stateAudience   = "guildvote-oauth-state"
)

var (
	ErrMissingSessionSigningKey = errors.New("session manager: signing key required")
	ErrMissingSessionIssuer     = errors.New("session manager: issuer required")
	ErrMissingSessionCookieName = errors.New("session manager: cookie name required")
	ErrMissingSessionToken      = errors.New("session manager: token required")
	ErrInvalidSessionToken      = errors.New("session manager: invalid token")
	ErrExpiredSessionToken      = errors.New("session manager: token expired")
	ErrInvalidStateToken        = errors.New("session manager: invalid state token")
)

// SessionClaims is the JWT payload carried by the session cookie. The role
// flags are resolved once at login time and trusted for the cookie's
// lifetime.
type SessionClaims struct {
	Username        string `json:"username"`
	Discriminator   string `json:"discriminator,omitempty"`
	AvatarRef       string `json:"avatar,omitempty"`
	IsGuildMember   bool   `json:"guild_member"`
	HasRequiredRole bool   `json:"has_required_role"`
	IsAdmin         bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Identity converts the validated claims back into the boundary identity.
func (c SessionClaims) Identity() Identity {
	return Identity{
		UserID:          c.Subject,
		Username:        c.Username,
		Discriminator:   c.Discriminator,
		AvatarRef:       c.AvatarRef,
		IsGuildMember:   c.IsGuildMember,
		HasRequiredRole: c.HasRequiredRole,
		IsAdmin:         c.IsAdmin,
	}
}

// SessionManagerConfig configures the session token issuer/validator.
type SessionManagerConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	SessionTTL    time.Duration
	Clock         func() time.Time
}

// SessionManager issues and validates the HS256 JWTs that stand in for a
// server-side session store, plus the short-lived state tokens protecting the
// OAuth round trip.
type SessionManager struct {
	signingSecret []byte
	issuer        string
	cookieName    string
	sessionTTL    time.Duration
	clock         func() time.Time
}

// NewSessionManager constructs a manager with validated configuration.
func NewSessionManager(cfg SessionManagerConfig) (*SessionManager, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSessionSigningKey
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingSessionIssuer
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingSessionCookieName
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionManager{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		cookieName:    cookieName,
		sessionTTL:    ttl,
		clock:         clock,
	}, nil
}

// CookieName returns the cookie name configured for session lookups.
func (m *SessionManager) CookieName() string {
	return m.cookieName
}

// SessionTTL returns the configured session lifetime.
func (m *SessionManager) SessionTTL() time.Duration {
	return m.sessionTTL
}

// IssueSession produces a signed session token for the authenticated
// identity.
func (m *SessionManager) IssueSession(identity Identity) (string, error) {
	if strings.TrimSpace(identity.UserID) == "" {
		return "", ErrInvalidSessionToken
	}

	now := m.clock().UTC()
	claims := SessionClaims{
		Username:        identity.Username,
		Discriminator:   identity.Discriminator,
		AvatarRef:       identity.AvatarRef,
		IsGuildMember:   identity.IsGuildMember,
		HasRequiredRole: identity.HasRequiredRole,
		IsAdmin:         identity.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    m.issuer,
			Audience:  []string{sessionAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.sessionTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.signingSecret)
}

// ValidateSession validates a session token string and returns its claims.
func (m *SessionManager) ValidateSession(tokenString string) (SessionClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		m.keyFunc,
		jwt.WithTimeFunc(m.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(sessionAudience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, ErrExpiredSessionToken
		}
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return SessionClaims{}, ErrInvalidSessionToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return SessionClaims{}, ErrInvalidSessionToken
	}
	return *claims, nil
}

// ValidateRequest extracts the session cookie from the request and validates
// it.
func (m *SessionManager) ValidateRequest(r *http.Request) (SessionClaims, error) {
	if r == nil {
		return SessionClaims{}, ErrMissingSessionToken
	}
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie == nil {
		return SessionClaims{}, ErrMissingSessionToken
	}
	return m.ValidateSession(cookie.Value)
}

// IssueState produces a short-lived signed state token for the OAuth round
// trip, removing the need for a server-side session store during login.
func (m *SessionManager) IssueState() (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	now := m.clock().UTC()
	claims := jwt.RegisteredClaims{
		ID:        base64.RawURLEncoding.EncodeToString(nonce),
		Issuer:    m.issuer,
		Audience:  []string{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.signingSecret)
}

// ValidateState checks a state token returned by the OAuth callback.
func (m *SessionManager) ValidateState(tokenString string) error {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return ErrInvalidStateToken
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		m.keyFunc,
		jwt.WithTimeFunc(m.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(stateAudience),
	)
	if err != nil || parsed == nil || !parsed.Valid {
		return ErrInvalidStateToken
	}
	return nil
}

func (m *SessionManager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidSessionToken, t.Method.Alg())
	}
	return m.signingSecret, nil
}
