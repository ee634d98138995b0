// Package auth gates the moderation endpoints behind an admin login that
// issues short lived bearer tokens.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/jo-hoe/venicebridges/internal/common"
)

const DefaultTokenTTL = time.Hour

type Config struct {
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	PasswordHash string        `yaml:"passwordHash"`
	JWTSecret    string        `yaml:"jwtSecret"`
	TokenTTL     time.Duration `yaml:"tokenTTL"`
}

type Authenticator struct {
	cfg Config
	now func() time.Time
}

func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if cfg.Username == "" {
		return nil, errors.New("admin username is required")
	}
	if cfg.Password == "" && cfg.PasswordHash == "" {
		return nil, errors.New("admin password or password hash is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("admin jwt secret is required")
	}
	if cfg.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
			return nil, fmt.Errorf("invalid admin password hash: %w", err)
		}
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &Authenticator{cfg: cfg, now: time.Now}, nil
}

// Login checks the credentials and returns a signed token with its expiry.
func (a *Authenticator) Login(username, password string) (string, time.Time, error) {
	if !a.checkCredentials(username, password) {
		log.Warn().Str("username", username).Msg("admin login rejected")
		return "", time.Time{}, common.ErrUnauthorized
	}
	token, expiresAt, err := generateToken([]byte(a.cfg.JWTSecret), a.now(), a.cfg.TokenTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign admin token: %w", err)
	}
	log.Info().Time("expires_at", expiresAt).Msg("admin logged in")
	return token, expiresAt, nil
}

// Verify accepts tokens issued by Login that have not expired.
func (a *Authenticator) Verify(token string) error {
	if _, err := parseToken(token, []byte(a.cfg.JWTSecret), a.now()); err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnauthorized, err)
	}
	return nil
}

func (a *Authenticator) checkCredentials(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.cfg.Username)) == 1

	var passOK bool
	if a.cfg.PasswordHash != "" {
		passOK = bcrypt.CompareHashAndPassword([]byte(a.cfg.PasswordHash), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(a.cfg.Password)) == 1
	}
	return userOK && passOK
}
