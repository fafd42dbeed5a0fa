package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long issued tokens stay valid
const DefaultTokenTTL = 1 * time.Hour

// Claims are the JWT claims carried by a canon credential.
type Claims struct {
	jwt.RegisteredClaims

	// UserID is the unique user identifier (UUID)
	UserID string `json:"user_id"`

	// Email is the user's email address
	Email string `json:"email"`
}

// TokenManager signs and verifies HS256 session tokens.
//
// Verification is purely functional: it never touches storage, so the
// identity it produces is only as fresh as the token's own expiry.
type TokenManager struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
}

// NewTokenManager creates a token manager with the default 1h TTL.
func NewTokenManager(signingKey []byte, issuer string) *TokenManager {
	return &TokenManager{
		signingKey: signingKey,
		issuer:     issuer,
		tokenTTL:   DefaultTokenTTL,
	}
}

// WithTokenTTL overrides the token lifetime.
func (tm *TokenManager) WithTokenTTL(ttl time.Duration) *TokenManager {
	tm.tokenTTL = ttl
	return tm
}

// Generate creates a signed token for the given user.
func (tm *TokenManager) Generate(userID, email string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user ID cannot be empty")
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tm.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.tokenTTL)),
		},
		UserID: userID,
		Email:  email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates signature and expiry and returns the embedded identity.
// Failures are classified as malformed, expired, or bad signature.
func (tm *TokenManager) Verify(tokenString string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.signingKey, nil
	}, jwt.WithIssuer(tm.issuer))

	switch {
	case err == nil && token.Valid:
		if claims.UserID == "" {
			return nil, ErrTokenMalformed
		}
		return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, fmt.Errorf("%w: %v", ErrTokenSignature, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
