package auth

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-unit-tests"

func newTestVerifier() *JWTVerifier {
	return NewJWTVerifier(testSecret, "switchboard-test", time.Hour)
}

func TestJWTVerifier_IssueAndVerify_RoundTripsScope(t *testing.T) {
	t.Parallel()

	v := newTestVerifier()
	token, err := v.Issue(Principal{ID: "u1", Role: "dispatcher", Unit: "p1", Organization: "o1"})
	require.NoError(t, err)

	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, &Principal{ID: "u1", Role: "dispatcher", Unit: "p1", Organization: "o1"}, p)
}

func TestJWTVerifier_Verify_AllowsMissingScopes(t *testing.T) {
	t.Parallel()

	v := newTestVerifier()
	token, err := v.Issue(Principal{ID: "admin-1", Role: "admin"})
	require.NoError(t, err)

	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Empty(t, p.Unit)
	assert.Empty(t, p.Organization)
}

func TestJWTVerifier_Verify_RejectsWrongSecret(t *testing.T) {
	t.Parallel()

	other := NewJWTVerifier("another-secret", "switchboard-test", time.Hour)
	token, err := other.Issue(Principal{ID: "u1", Role: "driver"})
	require.NoError(t, err)

	_, err = newTestVerifier().Verify(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_Verify_RejectsWrongIssuer(t *testing.T) {
	t.Parallel()

	other := NewJWTVerifier(testSecret, "someone-else", time.Hour)
	token, err := other.Issue(Principal{ID: "u1", Role: "driver"})
	require.NoError(t, err)

	_, err = newTestVerifier().Verify(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_Verify_RejectsExpiredToken(t *testing.T) {
	t.Parallel()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "switchboard-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Role: "driver",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = newTestVerifier().Verify(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_Verify_RejectsTokenWithoutExpiry(t *testing.T) {
	t.Parallel()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "switchboard-test"},
		Role:             "driver",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = newTestVerifier().Verify(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_Verify_RejectsMissingRole(t *testing.T) {
	t.Parallel()

	v := newTestVerifier()
	token, err := v.Issue(Principal{ID: "u1"})
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
	assert.Contains(t, err.Error(), "role")
}

func TestJWTVerifier_Verify_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "switchboard-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "driver",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = newTestVerifier().Verify(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_Verify_RejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, token := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		_, err := newTestVerifier().Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}

func TestAPITokens_Validate_MatchesConfiguredHash(t *testing.T) {
	t.Parallel()

	tokens := NewAPITokens(map[string]string{"trips-service": HashToken("s3cret")})

	name, err := tokens.Validate("s3cret")
	require.NoError(t, err)
	assert.Equal(t, "trips-service", name)

	_, err = tokens.Validate("wrong")
	require.ErrorIs(t, err, ErrInvalidToken)
	assert.False(t, tokens.Empty())
}

func TestAPITokens_Validate_AcceptsUppercaseHash(t *testing.T) {
	t.Parallel()

	hash := HashToken("s3cret")
	upper := make([]byte, len(hash))
	for i := range hash {
		c := hash[i]
		if c >= 'a' && c <= 'f' {
			c -= 'a' - 'A'
		}
		upper[i] = c
	}

	tokens := NewAPITokens(map[string]string{"ops": string(upper)})
	name, err := tokens.Validate("s3cret")
	require.NoError(t, err)
	assert.Equal(t, "ops", name)
}

func TestAPITokens_Validate_RejectsEmpty(t *testing.T) {
	t.Parallel()

	tokens := NewAPITokens(nil)
	assert.True(t, tokens.Empty())

	_, err := tokens.Validate("")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestHashToken_IsStableHex(t *testing.T) {
	t.Parallel()

	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.Len(t, HashToken("abc"), 64)
	assertHexString(t, HashToken("abc"))
}

func assertHexString(t *testing.T, s string) {
	t.Helper()
	_, err := hex.DecodeString(s)
	assert.NoError(t, err, "expected hex string, got %q", s)
}
