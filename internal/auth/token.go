package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMalformedToken = errors.New("auth: malformed token")
	ErrBadSignature   = errors.New("auth: signature mismatch")
	ErrTokenExpired   = errors.New("auth: token expired")
)

// Claims is the payload the authentication layer signs. The core trusts it;
// tenant checks happen at the edge of every handler.
type Claims struct {
	UserID          string      `json:"user_id"`
	VenueID         uuid.UUID   `json:"venue_id"`
	Role            string      `json:"role"`
	AllowedVenueIDs []uuid.UUID `json:"allowed_venue_ids"`
	ExpiresAt       int64       `json:"exp,omitempty"`
}

// AllowsVenue reports whether the caller may act on the given tenant.
func (c Claims) AllowsVenue(venueID uuid.UUID) bool {
	for _, id := range c.AllowedVenueIDs {
		if id == venueID {
			return true
		}
	}
	return false
}

// CanOverride reports whether the role may undo other actors' transitions.
func (c Claims) CanOverride() bool {
	return c.Role == "manager" || c.Role == "admin"
}

// Codec signs and verifies compact bearer tokens:
// base64url(json(claims)) "." base64url(HMAC-SHA256(payload)).
type Codec struct {
	secret []byte
}

func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret}
}

func (c *Codec) Sign(claims Claims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + c.signature(encoded), nil
}

func (c *Codec) Verify(token string, now time.Time) (Claims, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return Claims{}, ErrMalformedToken
	}
	if !hmac.Equal([]byte(c.signature(parts[0])), []byte(parts[1])) {
		return Claims{}, ErrBadSignature
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Claims{}, ErrMalformedToken
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, ErrMalformedToken
	}
	if claims.ExpiresAt != 0 && now.Unix() >= claims.ExpiresAt {
		return Claims{}, ErrTokenExpired
	}
	return claims, nil
}

func (c *Codec) signature(encodedPayload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(encodedPayload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
