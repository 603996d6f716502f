package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "bearer "

var (
	ErrMissingSigningSecret = errors.New("host session: signing secret required")
	ErrMissingIssuer        = errors.New("host session: issuer required")
	ErrMissingCookieName    = errors.New("host session: cookie name required")
	ErrMissingToken         = errors.New("host session: token required")
	ErrInvalidToken         = errors.New("host session: invalid token")
	ErrExpiredToken         = errors.New("host session: token expired")
	ErrMissingSubject       = errors.New("host session: subject required")
)

// HostClaims is the session payload minted by the identity provider for restaurant staff.
type HostClaims struct {
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// HostID returns the stable staff identifier.
func (c HostClaims) HostID() string {
	return c.Subject
}

// SessionValidatorConfig describes how host sessions are verified.
type SessionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	Clock         func() time.Time
}

// SessionValidator verifies HS256 host session tokens carried in a bearer header or cookie.
type SessionValidator struct {
	signingSecret []byte
	issuer        string
	cookieName    string
	clock         func() time.Time
}

func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingCookieName
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionValidator{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		cookieName:    cookieName,
		clock:         clock,
	}, nil
}

// ValidateToken parses a raw token and returns its claims.
func (v *SessionValidator) ValidateToken(rawToken string) (HostClaims, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return HostClaims{}, ErrMissingToken
	}

	claims := &HostClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(*jwt.Token) (interface{}, error) {
			return v.signingSecret, nil
		},
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return HostClaims{}, ErrExpiredToken
		}
		return HostClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return HostClaims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return HostClaims{}, ErrMissingSubject
	}
	return *claims, nil
}

// ValidateRequest prefers an Authorization bearer token and falls back to the session cookie.
func (v *SessionValidator) ValidateRequest(r *http.Request) (HostClaims, error) {
	if r == nil {
		return HostClaims{}, ErrMissingToken
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			return v.ValidateToken(header[len(bearerPrefix):])
		}
		return HostClaims{}, fmt.Errorf("%w: unsupported authorization scheme", ErrInvalidToken)
	}
	cookie, err := r.Cookie(v.cookieName)
	if err != nil || cookie == nil {
		return HostClaims{}, ErrMissingToken
	}
	return v.ValidateToken(cookie.Value)
}
