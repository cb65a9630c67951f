package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidIssuerConfig = errors.New("auth: invalid token issuer config")

	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingIssuer        = errors.New("issuer must be provided")
	errMissingAudience      = errors.New("audience must be provided")
	errNonPositiveTTL       = errors.New("token ttl must be positive")
	errMissingSubjectClaim  = errors.New("subject claim must be provided")
	errMissingRoomClaim     = errors.New("room claim must be provided")
)

// TokenIssuerConfig configures the room access token issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// RoomClaims binds a token to one connection's membership in one room.
// The registered subject is the connection id.
type RoomClaims struct {
	RoomID   string `json:"room_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// ConnID returns the connection the token was issued to.
func (c RoomClaims) ConnID() string {
	return c.Subject
}

// TokenIssuer issues and validates HS256 room access tokens.
type TokenIssuer struct {
	signingSecret []byte
	issuer        string
	audience      string
	ttl           time.Duration
	clock         func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with validated configuration.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIssuerConfig, errMissingSigningSecret)
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIssuerConfig, errMissingIssuer)
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIssuerConfig, errMissingAudience)
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIssuerConfig, errNonPositiveTTL)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		audience:      audience,
		ttl:           cfg.TokenTTL,
		clock:         clock,
	}, nil
}

// IssueRoomToken produces a signed JWT and its lifetime in seconds.
func (i *TokenIssuer) IssueRoomToken(roomID, socketID, username string) (string, int64, error) {
	if strings.TrimSpace(socketID) == "" {
		return "", 0, errMissingSubjectClaim
	}
	if strings.TrimSpace(roomID) == "" {
		return "", 0, errMissingRoomClaim
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl).UTC()

	claims := RoomClaims{
		RoomID:   roomID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   socketID,
			Issuer:    i.issuer,
			Audience:  []string{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken verifies signature, issuer, audience and expiry and returns
// the room claims. Expired tokens yield an error matching jwt.ErrTokenExpired.
func (i *TokenIssuer) ValidateToken(tokenString string) (RoomClaims, error) {
	claims := &RoomClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return i.signingSecret, nil
		},
		jwt.WithAudience(i.audience),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		return RoomClaims{}, err
	}
	if claims.Subject == "" {
		return RoomClaims{}, errMissingSubjectClaim
	}
	if claims.RoomID == "" {
		return RoomClaims{}, errMissingRoomClaim
	}
	return *claims, nil
}
