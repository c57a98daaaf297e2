// Package adminapi is the JWT-guarded operator surface of the mirror:
// trigger a sync, watch its progress, inspect recent runs, force a
// reindex. It is a separate HTTP surface from internal/downstream's
// MS-WSUSSS SOAP endpoints and never touches the opaque cookie exchange
// those implement.
//
// Auth is a single operator account: bcrypt hash at rest, stateless
// golang-jwt bearer tokens issued on login, no user table and no
// sessions table.
package adminapi

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("adminapi: invalid credentials")
	ErrTokenExpired       = errors.New("adminapi: token expired")
	ErrTokenInvalid       = errors.New("adminapi: token invalid")
)

// claims is the JWT payload issued on successful login. There is exactly
// one operator account, so Subject always carries its configured username.
type claims struct {
	jwt.RegisteredClaims
}

// Authenticator hashes/verifies the single operator account's password and
// mints/validates bearer tokens for it.
type Authenticator struct {
	username     string
	passwordHash string
	secret       []byte
	ttl          time.Duration
}

// NewAuthenticator builds an Authenticator for the one configured operator
// account. passwordHash is a bcrypt hash, matching config.AdminPasswordHash.
func NewAuthenticator(username, passwordHash, jwtSecret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Authenticator{username: username, passwordHash: passwordHash, secret: []byte(jwtSecret), ttl: ttl}
}

// HashPassword bcrypt-hashes a plaintext password for storage in
// config.AdminPasswordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Login verifies username/password against the configured operator account
// and returns a signed bearer token on success.
func (a *Authenticator) Login(username, password string) (string, error) {
	if username != a.username || a.passwordHash == "" {
		return "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	})
	return tok.SignedString(a.secret)
}

// Validate parses and verifies a bearer token, returning the operator
// username it was issued for.
func (a *Authenticator) Validate(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return "", ErrTokenInvalid
	}
	return c.Subject, nil
}
