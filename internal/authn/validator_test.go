package authn

import (
	"context"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func signHS256(t *testing.T, secret []byte, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestValidateHS256FallbackWhenNoJWKSLoaded(t *testing.T) {
	secret := []byte("test-hmac-secret")
	v := NewValidator(NewJWKSCache("", "", ""), secret, "", "")

	token := signHS256(t, secret, jwtlib.MapClaims{
		"sub": "user-1",
		"exp": float64(time.Now().Add(time.Hour).Unix()),
		"role": "ops-admin,viewer",
	})

	claims, err := v.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("expected validation to succeed, got %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if !claims.Roles.Has("ops-admin") || !claims.Roles.Has("viewer") {
		t.Fatalf("expected role union from comma-separated role claim, got %v", claims.Roles)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	secret := []byte("test-hmac-secret")
	v := NewValidator(NewJWKSCache("", "", ""), secret, "", "")

	token := signHS256(t, secret, jwtlib.MapClaims{
		"sub": "user-1",
		"exp": float64(time.Now().Add(-time.Hour).Unix()),
	})

	if _, err := v.Validate(context.Background(), token); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestValidateRejectsMissingSubject(t *testing.T) {
	secret := []byte("test-hmac-secret")
	v := NewValidator(NewJWKSCache("", "", ""), secret, "", "")

	token := signHS256(t, secret, jwtlib.MapClaims{
		"exp": float64(time.Now().Add(time.Hour).Unix()),
	})

	if _, err := v.Validate(context.Background(), token); err != ErrInvalidSubject {
		t.Fatalf("expected ErrInvalidSubject, got %v", err)
	}
}

func TestRequireOpsAdmin(t *testing.T) {
	withRole := Claims{Roles: RoleSet{"ops-admin": struct{}{}}}
	if err := RequireOpsAdmin(withRole); err != nil {
		t.Fatalf("expected ops-admin to pass, got %v", err)
	}

	withoutRole := Claims{Roles: RoleSet{"viewer": struct{}{}}}
	if err := RequireOpsAdmin(withoutRole); err != ErrOpsAccessDenied {
		t.Fatalf("expected ErrOpsAccessDenied, got %v", err)
	}
}

func TestValidateMissingAuthorizationHeader(t *testing.T) {
	v := NewValidator(NewJWKSCache("", "", ""), nil, "", "")
	if _, err := v.ValidateAuthorizationHeader(context.Background(), ""); err != ErrMissingAuthorization {
		t.Fatalf("expected ErrMissingAuthorization, got %v", err)
	}
}
