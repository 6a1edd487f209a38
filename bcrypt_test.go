package shield_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	shield "github.com/goliatone/go-shield"
)

func TestBcryptHasher(t *testing.T) {
	h := shield.NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash(testPassword)
	require.NoError(t, err)
	assert.NotEqual(t, testPassword, hash)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	assert.True(t, h.Verify(testPassword, hash))
	assert.False(t, h.Verify("wrong", hash))
	assert.False(t, h.Verify("", hash))
	assert.False(t, h.Verify(testPassword, ""))

	_, err = h.Hash("")
	assert.ErrorIs(t, err, shield.ErrEmptyPassword)

	// burning must not panic and must not depend on the input
	h.Burn(testPassword)
	h.Burn("")
}
