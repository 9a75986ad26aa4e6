// Package auth is the sole authority on password and token cryptography.
// It performs pure computation only: no network or disk I/O.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/contactbook/apiserver/config"
	"github.com/contactbook/apiserver/types"
)

var (
	// ErrInvalidToken is returned when a token is malformed or its
	// signature does not verify.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a token's expiry has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrWrongPurpose is returned when a valid token is presented to a
	// consumer expecting a different purpose claim.
	ErrWrongPurpose = errors.New("wrong token purpose")
)

// Purpose restricts which operation may consume a token. It is embedded in
// the signed payload so purpose confusion fails validation, not silently.
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
	PurposeVerify  Purpose = "verify"
	PurposeReset   Purpose = "reset"
)

// Claims is the signed token payload: subject (user email), role, and the
// purpose tag, plus the registered issued-at/expiry claims.
type Claims struct {
	Role    types.Role `json:"role,omitempty"`
	Purpose Purpose    `json:"purpose"`
	jwt.RegisteredClaims
}

// Service mints and validates signed tokens and owns password hashing.
type Service struct {
	secret []byte
	cfg    config.AuthConfig
	now    func() time.Time
}

// NewService constructs a Service from config. A zero BcryptCost falls back
// to the bcrypt default; zero TTLs fall back to the documented defaults.
func NewService(cfg config.AuthConfig) (*Service, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = 30 * time.Minute
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if cfg.VerifyTokenTTL == 0 {
		cfg.VerifyTokenTTL = 24 * time.Hour
	}
	if cfg.ResetTokenTTL == 0 {
		cfg.ResetTokenTTL = 30 * time.Minute
	}
	return &Service{
		secret: []byte(cfg.JWTSecret),
		cfg:    cfg,
		now:    time.Now,
	}, nil
}

// WithClock overrides the service clock. Used by tests to exercise expiry.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// IssueAccessToken mints a short-lived access token for the subject.
func (s *Service) IssueAccessToken(subject string, role types.Role) (string, error) {
	return s.issue(subject, role, PurposeAccess, s.cfg.AccessTokenTTL)
}

// IssueRefreshToken mints a longer-lived token used only to obtain a new
// access token.
func (s *Service) IssueRefreshToken(subject string, role types.Role) (string, error) {
	return s.issue(subject, role, PurposeRefresh, s.cfg.RefreshTokenTTL)
}

// IssueVerificationToken mints an email-verification token for the subject.
func (s *Service) IssueVerificationToken(subject string) (string, error) {
	return s.issue(subject, "", PurposeVerify, s.cfg.VerifyTokenTTL)
}

// IssueResetToken mints a password-reset token for the subject.
func (s *Service) IssueResetToken(subject string) (string, error) {
	return s.issue(subject, "", PurposeReset, s.cfg.ResetTokenTTL)
}

func (s *Service) issue(subject string, role types.Role, purpose Purpose, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := s.now()
	claims := Claims{
		Role:    role,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken checks signature, expiry, and the purpose claim, in that
// order, and returns the embedded claims. The three failure modes map to
// ErrInvalidToken, ErrTokenExpired, and ErrWrongPurpose respectively so
// callers can tell them apart.
func (s *Service) ValidateToken(tokenString string, purpose Purpose) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}
