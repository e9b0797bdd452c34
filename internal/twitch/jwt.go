package twitch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

const signedTokenTTL = 30 * time.Second

// ErrInvalidToken is returned for viewer tokens that fail verification.
var ErrInvalidToken = errors.New("invalid extension token")

// ViewerClaims are the fields of a verified extension viewer token.
type ViewerClaims struct {
	ChannelID    string `json:"channel_id"`
	OpaqueUserID string `json:"opaque_user_id"`
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
	jwt.RegisteredClaims
}

// TokenSigner signs short-lived extension JWTs for outbound PubSub and
// chat calls, and verifies the viewer tokens the frontend sends.
type TokenSigner struct {
	secret  []byte
	ownerID string
	clock   clockwork.Clock
}

func NewTokenSigner(secret []byte, ownerID string, clock clockwork.Clock) *TokenSigner {
	return &TokenSigner{secret: secret, ownerID: ownerID, clock: clock}
}

// ChannelToken signs a token allowing a broadcast to one channel.
func (s *TokenSigner) ChannelToken(channelID string) (string, error) {
	return s.sign(channelID, []string{"broadcast"})
}

// GlobalToken signs a token allowing the cross-channel broadcast.
func (s *TokenSigner) GlobalToken() (string, error) {
	return s.sign("all", []string{"global"})
}

func (s *TokenSigner) sign(channelID string, perms []string) (string, error) {
	claims := jwt.MapClaims{
		"exp":        s.clock.Now().Add(signedTokenTTL).Unix(),
		"user_id":    s.ownerID,
		"role":       "external",
		"channel_id": channelID,
		"pubsub_perms": map[string]any{
			"send": perms,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign extension token: %w", err)
	}
	return token, nil
}

// VerifyViewerToken checks the Authorization header value of a frontend
// request and returns its claims. The "Bearer " prefix is optional.
func (s *TokenSigner) VerifyViewerToken(header string) (*ViewerClaims, error) {
	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == "" {
		return nil, ErrInvalidToken
	}

	claims := &ViewerClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ChannelID == "" || claims.OpaqueUserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
