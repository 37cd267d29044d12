// Package authn implements the bearer-token validation path gating
// privileged operations: claim checks, JWKS fetch/refresh, and RS256/HS256
// algorithm selection.
package authn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingAuthorization = errors.New("missing Authorization header")
	ErrMalformedToken       = errors.New("malformed token")
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrUnknownKid           = errors.New("unknown kid")
	ErrExpired              = errors.New("token expired")
	ErrInvalidIssuer        = errors.New("invalid issuer")
	ErrInvalidAudience      = errors.New("invalid audience")
	ErrInvalidSubject       = errors.New("invalid subject")
	ErrOpsAccessDenied      = errors.New("ops access denied")
)

const opsAdminRole = "ops-admin"

// Claims is the canonical, validated view of a bearer token.
type Claims struct {
	Subject string
	Roles   RoleSet
}

// RoleSet is the canonical role shape built by union of the roles array
// and the comma-separated role string; the core only ever consumes this.
type RoleSet map[string]struct{}

// Has reports whether role is present.
func (r RoleSet) Has(role string) bool {
	_, ok := r[role]
	return ok
}

// Validator validates bearer tokens against a JWKS cache, with HS256 as a
// fallback used only when no JWKS has ever been successfully loaded.
type Validator struct {
	jwks        *JWKSCache
	hmacSecret  []byte
	expectedIss string
	expectedAud string
}

// NewValidator constructs a Validator. hmacSecret may be nil if HS256
// fallback is not configured. expectedIss/expectedAud may be empty to skip
// that check.
func NewValidator(jwks *JWKSCache, hmacSecret []byte, expectedIss, expectedAud string) *Validator {
	return &Validator{jwks: jwks, hmacSecret: hmacSecret, expectedIss: expectedIss, expectedAud: expectedAud}
}

// ValidateAuthorizationHeader extracts and validates a "Bearer <token>"
// header value.
func (v *Validator) ValidateAuthorizationHeader(ctx context.Context, header string) (Claims, error) {
	if header == "" {
		return Claims{}, ErrMissingAuthorization
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return Claims{}, ErrMalformedToken
	}
	return v.Validate(ctx, strings.TrimPrefix(header, prefix))
}

// Validate parses and validates tokenString against the configured key
// material and claim requirements.
func (v *Validator) Validate(ctx context.Context, tokenString string) (Claims, error) {
	var keyErr error
	token, err := jwtlib.Parse(tokenString, func(t *jwtlib.Token) (interface{}, error) {
		switch t.Method.(type) {
		case *jwtlib.SigningMethodRSA:
			if !v.jwks.Loaded() {
				keyErr = ErrUnknownKid
				return nil, keyErr
			}
			kid, ok := t.Header["kid"].(string)
			if !ok || kid == "" {
				keyErr = ErrUnknownKid
				return nil, keyErr
			}
			key, ok := v.jwks.Lookup(kid)
			if !ok {
				keyErr = ErrUnknownKid
				return nil, keyErr
			}
			return key, nil
		case *jwtlib.SigningMethodHMAC:
			// HS256 is accepted only when no JWKS has ever loaded
			// successfully, per the validator's algorithm-selection policy.
			if v.jwks.Loaded() || v.hmacSecret == nil {
				keyErr = ErrUnsupportedAlgorithm
				return nil, keyErr
			}
			return v.hmacSecret, nil
		default:
			keyErr = ErrUnsupportedAlgorithm
			return nil, keyErr
		}
	})
	if err != nil {
		if keyErr != nil {
			return Claims{}, keyErr
		}
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if !token.Valid {
		return Claims{}, ErrMalformedToken
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return Claims{}, ErrMalformedToken
	}

	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return Claims{}, ErrInvalidSubject
	}

	expFloat, ok := claims["exp"].(float64)
	if !ok {
		return Claims{}, ErrExpired
	}
	if time.Unix(int64(expFloat), 0).Before(time.Now()) || int64(expFloat) <= time.Now().Unix() {
		return Claims{}, ErrExpired
	}

	if v.expectedIss != "" {
		iss, _ := claims["iss"].(string)
		if iss != v.expectedIss {
			return Claims{}, ErrInvalidIssuer
		}
	}
	if v.expectedAud != "" {
		aud, _ := claims["aud"].(string)
		if aud != v.expectedAud {
			return Claims{}, ErrInvalidAudience
		}
	}

	return Claims{Subject: sub, Roles: unionRoles(claims)}, nil
}

// RequireOpsAdmin returns ErrOpsAccessDenied unless the caller holds the
// ops-admin role.
func RequireOpsAdmin(c Claims) error {
	if !c.Roles.Has(opsAdminRole) {
		return ErrOpsAccessDenied
	}
	return nil
}

func unionRoles(claims jwtlib.MapClaims) RoleSet {
	out := make(RoleSet)
	if arr, ok := claims["roles"].([]interface{}); ok {
		for _, r := range arr {
			if s, ok := r.(string); ok && s != "" {
				out[s] = struct{}{}
			}
		}
	}
	if csv, ok := claims["role"].(string); ok {
		for _, s := range strings.Split(csv, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				out[s] = struct{}{}
			}
		}
	}
	return out
}
