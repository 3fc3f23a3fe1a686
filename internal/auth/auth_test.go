package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"

	"orienta/internal/config"
)

func newTestService(secret string, expiration time.Duration) *Service {
	return NewService(&config.JWTConfig{Secret: secret, Expiration: expiration}, "orienta-test")
}

func TestHashPassword(t *testing.T) {
	svc := newTestService("test-secret", time.Hour)

	password := "testpassword123"
	hash, err := svc.HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	if hash == "" || hash == password {
		t.Error("Hash should be non-empty and differ from the password")
	}

	if err := svc.VerifyPassword(hash, password); err != nil {
		t.Errorf("Should verify correct password, got error: %v", err)
	}
	if err := svc.VerifyPassword(hash, "wrongpassword"); err == nil {
		t.Error("Should not verify incorrect password")
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := newTestService("test-secret", time.Hour)

	token, expiresAt, err := svc.GenerateToken(42, "admin@example.com")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Error("expiry should be in the future")
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.AdminID != 42 || claims.Email != "admin@example.com" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestTokenSurvivesRestartWithSameSecret(t *testing.T) {
	first := newTestService("shared-secret", time.Hour)
	second := newTestService("shared-secret", time.Hour)
	other := newTestService("different-secret", time.Hour)

	token, _, err := first.GenerateToken(1, "a@example.com")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if _, err := second.ValidateToken(token); err != nil {
		t.Errorf("same secret should validate: %v", err)
	}
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("different secret should not validate")
	}
}

func TestExpiredToken(t *testing.T) {
	svc := newTestService("test-secret", -time.Minute)

	token, _, err := svc.GenerateToken(1, "a@example.com")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if _, err := svc.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestPEMKey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	secret := string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))

	svc := newTestService(secret, time.Hour)
	if !svc.publicKey.Equal(&key.PublicKey) {
		t.Error("PEM key should be used as signing key")
	}

	escaped := newTestService(strings.ReplaceAll(secret, "\n", `\n`), time.Hour)
	if !escaped.publicKey.Equal(&key.PublicKey) {
		t.Error("PEM key with escaped newlines should be used as signing key")
	}
}

func TestInvalidToken(t *testing.T) {
	svc := newTestService("test-secret", time.Hour)

	if _, err := svc.ValidateToken("not-a-token"); err == nil {
		t.Error("expected error for malformed token")
	}
}
