package realtime

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BuildAccessToken signs a short-lived HS256 room-join token in the shape the
// realtime provider expects: issuer = API key, subject = participant identity,
// room grant under "video".
func BuildAccessToken(apiKey, apiSecret, room, identity string, ttl time.Duration) (string, error) {
	if apiKey == "" || apiSecret == "" {
		return "", errors.New("realtime api key/secret are not set")
	}
	if room == "" || identity == "" {
		return "", errors.New("room and identity are required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"iss": apiKey,
		"sub": identity,
		"nbf": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"video": map[string]any{
			"room":     room,
			"roomJoin": true,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(apiSecret))
}
