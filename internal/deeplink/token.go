// Package deeplink issues and verifies the signed tokens embedded in
// notification captions, and serves the web view those links resolve to.
package deeplink

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/karanvats/scripalert/internal/core/apperrors"
)

const tokenSegments = 2

// Claims is the payload carried by a deep-link token.
type Claims struct {
	UserID string `json:"user_id"`
	NewsID string `json:"news_id"`
	Exp    int64  `json:"exp"`
}

// TokenService signs and verifies deep-link tokens.
//
// Wire format: base64url(JSON claims) + "." + base64url(HMAC-SHA256 of the
// first segment), both unpadded.
type TokenService struct {
	secret []byte
	ttl    time.Duration

	// now is swappable for expiry tests.
	now func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate creates a signed token for one (user, announcement) pair.
func (s *TokenService) Generate(userID, newsID string) (string, error) {
	claims := Claims{
		UserID: userID,
		NewsID: newsID,
		Exp:    s.now().Add(s.ttl).Unix(),
	}

	body, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(body)

	return encoded + "." + s.sign(encoded), nil
}

// Verify validates a token and returns its claims. Tampered signatures and
// expired tokens both fail; the signature check is constant-time.
func (s *TokenService) Verify(token string) (*Claims, error) {
	parts := splitToken(token)
	if len(parts) != tokenSegments {
		return nil, apperrors.ErrInvalidToken
	}

	encoded, sig := parts[0], parts[1]

	expected := s.sign(encoded)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return nil, apperrors.ErrInvalidToken
	}

	body, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}

	claims := &Claims{}
	if err := json.Unmarshal(body, claims); err != nil {
		return nil, apperrors.ErrInvalidToken
	}

	if claims.Exp < s.now().Unix() {
		return nil, apperrors.ErrTokenExpired
	}

	return claims, nil
}

func (s *TokenService) sign(encoded string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encoded))

	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func splitToken(token string) []string {
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			return []string{token[:i], token[i+1:]}
		}
	}

	return []string{token}
}
