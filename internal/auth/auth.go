// Package auth issues and validates the bearer tokens that protect the
// dataset API.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenMissing       = errors.New("token missing")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
)

// Config configures an Issuer.
type Config struct {
	Secret   string
	TTL      time.Duration
	Issuer   string
	Username string
	Password string
	Now      func() time.Time // Default time.Now
}

// Claims are the JWT claims of an access token.
type Claims struct {
	jwt.RegisteredClaims
}

// Token is a signed access token.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Issuer signs access tokens for the configured user with HS256.
type Issuer struct {
	cfg Config
}

// NewIssuer returns an Issuer. The secret must not be empty.
func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("auth: empty signing secret")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Issuer{cfg: cfg}, nil
}

// Login checks the credentials and returns a fresh token.
func (i *Issuer) Login(username, password string) (Token, error) {
	if username == "" || password == "" {
		return Token{}, ErrMissingCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(i.cfg.Username))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(i.cfg.Password))
	if userOK&passOK != 1 {
		return Token{}, ErrInvalidCredentials
	}
	return i.Issue(username)
}

// Issue signs a token for subject without checking credentials.
func (i *Issuer) Issue(subject string) (Token, error) {
	now := i.cfg.Now()
	exp := now.Add(i.cfg.TTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.Secret))
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// Validate parses a token and returns its claims. Errors are ErrTokenMissing,
// ErrTokenExpired or ErrTokenInvalid.
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.cfg.Now),
		jwt.WithExpirationRequired(),
	}
	if i.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.cfg.Issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(i.cfg.Secret), nil
	}, opts...)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}
