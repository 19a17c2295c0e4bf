package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the signed payload of a session token. Roles are deliberately
// absent; they are reloaded from the store on every request.
type Claims struct {
	UserID    uuid.UUID `json:"user_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	CompanyID uuid.UUID `json:"company_id"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 session tokens.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec creates a codec. A ttl of zero or less issues tokens that are already expired.
func NewTokenCodec(secret string, ttl time.Duration) *TokenCodec {
	return &TokenCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the time source used for issuing and validating tokens.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	c.now = now
	return c
}

// Sign issues a token for the given identity and returns its expiry.
func (c *TokenCodec) Sign(userID, tenantID, companyID uuid.UUID) (string, time.Time, error) {
	now := c.now()
	exp := now.Add(c.ttl)
	claims := Claims{
		UserID:    userID,
		TenantID:  tenantID,
		CompanyID: companyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses and validates a token. Any failure, whichever check caught
// it, is reported as ErrInvalidToken.
func (c *TokenCodec) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	// exp is exclusive, so a token issued with a zero ttl never verifies.
	if !c.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrInvalidToken
	}
	if claims.UserID == uuid.Nil || claims.TenantID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
