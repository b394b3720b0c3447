package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/coursechat/coursechat-server/internal/store"
)

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "coursechat",
		Audience: "coursechat",
		TTL:      time.Hour,
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	cfg := testJWTConfig()

	token, err := GenerateToken(cfg, 42, "alice", store.RoleInstructor)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("user id = %d, want 42", claims.UserID)
	}
	if claims.Name != "alice" {
		t.Errorf("name = %q, want alice", claims.Name)
	}
	if claims.Role != string(store.RoleInstructor) {
		t.Errorf("role = %q, want instructor", claims.Role)
	}
}

func TestValidateToken_RejectsWrongSecret(t *testing.T) {
	cfg := testJWTConfig()

	token, err := GenerateToken(cfg, 1, "alice", store.RoleStudent)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	other := testJWTConfig()
	other.Secret = []byte("different-secret")
	if _, err := ValidateToken(other, token); err == nil {
		t.Fatal("expected validation failure with wrong secret")
	}
}

func TestValidateToken_RejectsWrongIssuerAndAudience(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateToken(cfg, 1, "alice", store.RoleStudent)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	badIssuer := testJWTConfig()
	badIssuer.Issuer = "someone-else"
	if _, err := ValidateToken(badIssuer, token); err == nil {
		t.Fatal("expected validation failure for wrong issuer")
	}

	badAudience := testJWTConfig()
	badAudience.Audience = "other-service"
	if _, err := ValidateToken(badAudience, token); err == nil {
		t.Fatal("expected validation failure for wrong audience")
	}
}

func TestValidateToken_RejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.TTL = -time.Minute

	token, err := GenerateToken(cfg, 1, "alice", store.RoleStudent)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if _, err := ValidateToken(testJWTConfig(), token); err == nil {
		t.Fatal("expected validation failure for expired token")
	}
}

func TestValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	cfg := testJWTConfig()

	claims := Claims{
		UserID: 1,
		Name:   "mallory",
		Role:   "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	if _, err := ValidateToken(cfg, token); err == nil {
		t.Fatal("expected validation failure for alg=none token")
	}
}

func TestAuthenticate_ReturnsIdentity(t *testing.T) {
	cfg := testJWTConfig()
	a := NewAuthenticator(cfg)

	token, err := GenerateToken(cfg, 7, "bob", store.RoleStudent)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	identity, err := a.Authenticate(token)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if identity.UserID != 7 || identity.Name != "bob" || identity.Role != store.RoleStudent {
		t.Errorf("unexpected identity: %+v", identity)
	}
}

func TestAuthenticate_EmptyAndGarbageTokens(t *testing.T) {
	a := NewAuthenticator(testJWTConfig())

	if _, err := a.Authenticate(""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for empty token, got %v", err)
	}
	if _, err := a.Authenticate("not-a-jwt"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for garbage token, got %v", err)
	}
}

func TestAuthenticate_UnknownRoleDefaultsToStudent(t *testing.T) {
	cfg := testJWTConfig()
	a := NewAuthenticator(cfg)

	token, err := GenerateToken(cfg, 9, "eve", store.Role("superuser"))
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	identity, err := a.Authenticate(token)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if identity.Role != store.RoleStudent {
		t.Errorf("role = %q, want student fallback", identity.Role)
	}
}
