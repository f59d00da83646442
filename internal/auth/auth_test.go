package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/akashi/internal/auth"
)

func TestGuard_EmptyTokenAlwaysVerifies(t *testing.T) {
	g := auth.NewGuard("")
	assert.False(t, g.Required())
	assert.True(t, g.Verify(""))
	assert.True(t, g.Verify("anything"))
}

func TestGuard_RejectsMissingOrWrongToken(t *testing.T) {
	g := auth.NewGuard("secret-token")
	assert.True(t, g.Required())
	assert.False(t, g.Verify(""))
	assert.False(t, g.Verify("wrong"))
	assert.True(t, g.Verify("secret-token"))
}

func TestNilGuard_AlwaysVerifies(t *testing.T) {
	var g *auth.Guard
	assert.False(t, g.Required())
	assert.True(t, g.Verify("anything"))
}

func TestHashAndVerifyToken(t *testing.T) {
	hash, err := auth.HashToken("test-token-123")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	valid, err := auth.VerifyToken("test-token-123", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = auth.VerifyToken("wrong-token", hash)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestHashedGuard_VerifiesAgainstHash(t *testing.T) {
	hash, err := auth.HashToken("hashed-secret")
	require.NoError(t, err)

	g := auth.NewHashedGuard(hash)
	assert.True(t, g.Required())
	assert.True(t, g.Verify("hashed-secret"))
	assert.False(t, g.Verify("wrong"))
}

func TestVerifyToken_RejectsMalformedHash(t *testing.T) {
	_, err := auth.VerifyToken("anything", "not-a-valid-hash")
	assert.Error(t, err)
}
