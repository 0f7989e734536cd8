package token

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/getmockd/interceptd/pkg/metrics"
)

// DefaultIssuer is the iss claim used when none is requested.
const DefaultIssuer = "interceptd"

// DefaultValidity is the token lifetime applied when validity is zero.
const DefaultValidity = 60 * time.Minute

// reservedClaims are registered claim names that custom claims may never
// override.
var reservedClaims = map[string]struct{}{
	"iss":   {},
	"sub":   {},
	"aud":   {},
	"exp":   {},
	"nbf":   {},
	"iat":   {},
	"jti":   {},
	"scp":   {},
	"roles": {},
}

// Options describes the claims of a token to issue.
type Options struct {
	// Name becomes the token subject.
	Name string `json:"name" yaml:"name"`

	// Audiences are the aud claim values. Each audience is carried as an
	// independent claim value, never joined into one delimited string.
	Audiences []string `json:"audiences,omitempty" yaml:"audiences,omitempty"`

	// Issuer is the iss claim (default DefaultIssuer).
	Issuer string `json:"issuer,omitempty" yaml:"issuer,omitempty"`

	// Roles are the roles claim values.
	Roles []string `json:"roles,omitempty" yaml:"roles,omitempty"`

	// Scopes are the scp claim values.
	Scopes []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`

	// Claims are additional custom claims. Keys equal to a reserved
	// registered claim name are stripped before merging.
	Claims map[string]interface{} `json:"claims,omitempty" yaml:"claims,omitempty"`

	// ValidForMinutes is the token lifetime in minutes (0 defaults to 60).
	ValidForMinutes int `json:"validFor,omitempty" yaml:"validFor,omitempty"`
}

// Token is an issued bearer token plus its decoded metadata.
type Token struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"tokenId"`
	Issuer    string    `json:"issuer"`
	Subject   string    `json:"subject"`
	Audiences []string  `json:"audiences,omitempty"`
	Scopes    []string  `json:"scopes,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	NotBefore time.Time `json:"validFrom"`
	ExpiresAt time.Time `json:"validTo"`
}

// Issuer builds and signs ephemeral bearer tokens.
type Issuer struct {
	key []byte
}

// NewIssuer creates an issuer with a freshly generated symmetric signing
// key.
func NewIssuer() (*Issuer, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return &Issuer{key: key}, nil
}

// Issue builds and signs a token for the given options.
func (i *Issuer) Issue(opts Options) (*Token, error) {
	now := time.Now()

	validity := time.Duration(opts.ValidForMinutes) * time.Minute
	if validity <= 0 {
		validity = DefaultValidity
	}
	issuer := opts.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	jti := uuid.NewString()
	expiresAt := now.Add(validity)

	claims := jwt.MapClaims{
		"iss": issuer,
		"sub": opts.Name,
		"jti": jti,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": expiresAt.Unix(),
	}
	if len(opts.Audiences) > 0 {
		claims["aud"] = opts.Audiences
	}
	if len(opts.Scopes) > 0 {
		claims["scp"] = opts.Scopes
	}
	if len(opts.Roles) > 0 {
		claims["roles"] = opts.Roles
	}
	for k, v := range opts.Claims {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		claims[k] = v
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	metrics.TokensIssued.Inc()
	return &Token{
		Token:     signed,
		TokenID:   jti,
		Issuer:    issuer,
		Subject:   opts.Name,
		Audiences: opts.Audiences,
		Scopes:    opts.Scopes,
		Roles:     opts.Roles,
		NotBefore: now,
		ExpiresAt: expiresAt,
	}, nil
}

// Parse decodes and verifies a token issued by this process. Intended for
// tests and diagnostics.
func (i *Issuer) Parse(tokenString string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.key, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", parsed.Claims)
	}
	return claims, nil
}
