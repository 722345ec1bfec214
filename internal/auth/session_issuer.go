package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultSessionTTL    = 14 * 24 * time.Hour
	defaultSessionIssuer = "speakfootball-api"
)

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingSessionUser   = errors.New("session user id must be provided")
)

// SessionSubject identifies the account a session is established for.
type SessionSubject struct {
	UserID   uint
	Username string
}

// SessionIssuerConfig configures the session cookie issuer.
type SessionIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	TTL           time.Duration
	Clock         func() time.Time
	IDGenerator   func() (string, error)
}

// SessionIssuer mints HS256 session tokens for authenticated users.
type SessionIssuer struct {
	signingSecret []byte
	issuer        string
	ttl           time.Duration
	clock         func() time.Time
	newID         func() (string, error)
}

// NewSessionIssuer constructs a SessionIssuer with validated configuration.
func NewSessionIssuer(cfg SessionIssuerConfig) (*SessionIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultSessionIssuer
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idGenerator := cfg.IDGenerator
	if idGenerator == nil {
		idGenerator = newSessionID
	}
	return &SessionIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		ttl:           ttl,
		clock:         clock,
		newID:         idGenerator,
	}, nil
}

// IssueSession produces a signed session token and its expiry for subject.
func (i *SessionIssuer) IssueSession(_ context.Context, subject SessionSubject) (string, time.Time, error) {
	if subject.UserID == 0 {
		return "", time.Time{}, errMissingSessionUser
	}
	sessionID, err := i.newID()
	if err != nil {
		return "", time.Time{}, err
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl)
	userID := strconv.FormatUint(uint64(subject.UserID), 10)

	claims := SessionClaims{
		UserID:   userID,
		Username: subject.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func newSessionID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
