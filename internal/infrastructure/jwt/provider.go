package jwtinfra

import (
	"errors"
	"time"

	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the JWT payload fields.
type Claims struct {
	AccountID string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role,omitempty"`
	Purpose   string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

type signingKey struct {
	secret []byte
	ttl    time.Duration
}

// Provider signs and verifies HS256 JWTs. Each purpose has its own secret and
// lifetime, so a token minted for one purpose never verifies as another.
type Provider struct {
	keys map[domain.TokenPurpose]signingKey
	now  func() time.Time
}

func NewProvider(cfg config.Tokens) *Provider {
	return &Provider{
		keys: map[domain.TokenPurpose]signingKey{
			domain.PurposeAccess:            {[]byte(cfg.AccessSecret), cfg.AccessTTL},
			domain.PurposeRefresh:           {[]byte(cfg.RefreshSecret), cfg.RefreshTTL},
			domain.PurposeEmailVerification: {[]byte(cfg.EmailVerificationSecret), cfg.EmailVerificationTTL},
			domain.PurposePasswordReset:     {[]byte(cfg.PasswordResetSecret), cfg.PasswordResetTTL},
		},
		now: time.Now,
	}
}

// Issue signs c for purpose. Password-reset tokens carry the purpose claim so
// the reset flow can assert it explicitly.
func (p *Provider) Issue(purpose domain.TokenPurpose, c domain.TokenClaims) (string, error) {
	k, ok := p.keys[purpose]
	if !ok {
		return "", domain.Errorf(domain.KindTokenSigning, "unknown token purpose %q", purpose)
	}
	if purpose == domain.PurposePasswordReset {
		c.Purpose = purpose
	}
	return Sign(c, k.secret, k.ttl, p.now())
}

// Verify parses token with the secret registered for purpose.
func (p *Provider) Verify(purpose domain.TokenPurpose, token string) (*domain.TokenClaims, error) {
	k, ok := p.keys[purpose]
	if !ok {
		return nil, domain.Errorf(domain.KindTokenInvalid, "unknown token purpose %q", purpose)
	}
	return Parse(token, k.secret, p.now())
}

// Sign mints an HS256 token for c valid from now for ttl.
func Sign(c domain.TokenClaims, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", domain.Errorf(domain.KindTokenSigning, "token secret is empty")
	}
	claims := Claims{
		AccountID: c.AccountID,
		Email:     c.Email,
		Role:      string(c.Role),
		Purpose:   string(c.Purpose),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", domain.Errorf(domain.KindTokenSigning, "sign token: %v", err)
	}
	return s, nil
}

// Parse verifies token against secret at now. Failures are reported as
// TokenExpired, TokenMalformed (structurally valid but missing claims) or
// TokenInvalid.
func Parse(token string, secret []byte, now time.Time) (*domain.TokenClaims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, domain.Errorf(domain.KindTokenExpired, "token expired")
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return nil, domain.Errorf(domain.KindTokenMalformed, "malformed token")
	default:
		return nil, domain.Errorf(domain.KindTokenInvalid, "invalid token")
	}
	if claims.AccountID == "" || claims.Email == "" {
		return nil, domain.Errorf(domain.KindTokenMalformed, "malformed token")
	}
	return &domain.TokenClaims{
		AccountID: claims.AccountID,
		Email:     claims.Email,
		Role:      domain.Role(claims.Role),
		Purpose:   domain.TokenPurpose(claims.Purpose),
	}, nil
}
