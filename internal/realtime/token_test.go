package realtime

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestBuildAccessToken(t *testing.T) {
	raw, err := BuildAccessToken("api-key", "api-secret", "room-1", "student-7", time.Hour)
	if err != nil {
		t.Fatalf("BuildAccessToken: %v", err)
	}

	parsed, err := jwt.Parse(raw, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			t.Fatalf("unexpected signing method %v", tok.Method)
		}
		return []byte("api-secret"), nil
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Valid {
		t.Fatal("token not valid")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatal("claims are not MapClaims")
	}
	if claims["iss"] != "api-key" {
		t.Fatalf("iss = %v, want api-key", claims["iss"])
	}
	if claims["sub"] != "student-7" {
		t.Fatalf("sub = %v, want student-7", claims["sub"])
	}
	video, ok := claims["video"].(map[string]any)
	if !ok {
		t.Fatalf("video claim missing: %v", claims["video"])
	}
	if video["room"] != "room-1" {
		t.Fatalf("video.room = %v, want room-1", video["room"])
	}
	if video["roomJoin"] != true {
		t.Fatalf("video.roomJoin = %v, want true", video["roomJoin"])
	}
}

func TestBuildAccessTokenRequiresCredentials(t *testing.T) {
	if _, err := BuildAccessToken("", "secret", "room", "id", time.Hour); err == nil {
		t.Fatal("expected error for empty api key")
	}
	if _, err := BuildAccessToken("key", "", "room", "id", time.Hour); err == nil {
		t.Fatal("expected error for empty api secret")
	}
}
