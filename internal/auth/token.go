package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any credential that fails verification.
var ErrInvalidToken = errors.New("invalid credential")

// Principal is the verified identity behind a connection.
type Principal struct {
	ID           string
	Role         string
	Unit         string // empty when the principal is not bound to a unit
	Organization string // empty when the principal is not bound to an organization
}

// Verifier turns an opaque bearer credential into a Principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// Claims is the JWT payload carried by handshake credentials.
type Claims struct {
	jwt.RegisteredClaims
	Role           string `json:"role"`
	UnitID         string `json:"unit_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewJWTVerifier creates a verifier. An empty issuer disables the issuer check.
func NewJWTVerifier(secret, issuer string, ttl time.Duration) *JWTVerifier {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
	}
}

// Verify parses and validates a token. The context is unused; verification is local.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if claims.Role == "" {
		return nil, fmt.Errorf("%w: missing role", ErrInvalidToken)
	}

	return &Principal{
		ID:           claims.Subject,
		Role:         claims.Role,
		Unit:         claims.UnitID,
		Organization: claims.OrganizationID,
	}, nil
}

// Issue signs a credential for p. Used by the `token` subcommand and tests;
// production credentials come from the identity provider.
func (v *JWTVerifier) Issue(p Principal) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
		Role:           p.Role,
		UnitID:         p.Unit,
		OrganizationID: p.Organization,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// HashToken returns the hex SHA-256 of a static API token, as stored in config.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// APITokens checks static producer/operator tokens against their configured hashes.
type APITokens struct {
	hashes map[string]string // hash → name
}

// NewAPITokens builds the lookup from name → hash pairs.
func NewAPITokens(entries map[string]string) *APITokens {
	hashes := make(map[string]string, len(entries))
	for name, hash := range entries {
		hashes[strings.ToLower(hash)] = name
	}
	return &APITokens{hashes: hashes}
}

// Validate returns the token's configured name.
func (a *APITokens) Validate(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	sum := HashToken(token)
	for hash, name := range a.hashes {
		if subtle.ConstantTimeCompare([]byte(hash), []byte(sum)) == 1 {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: unknown api token", ErrInvalidToken)
}

// Empty reports whether no API tokens are configured.
func (a *APITokens) Empty() bool {
	return len(a.hashes) == 0
}
