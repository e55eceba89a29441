//go:build !darwin

package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvKeyring(t *testing.T) {
	k := NewKeyring()

	t.Setenv(KeyEnv, "")
	assert.False(t, k.IsAvailable())
	_, err := k.GetKey()
	assert.ErrorContains(t, err, KeyEnv)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	t.Setenv(KeyEnv, "s3cret")
	assert.True(t, k.IsAvailable())
	key, err := k.GetKey()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", key)
}

func TestEnvKeyringCannotPersist(t *testing.T) {
	k := NewKeyring()

	err := k.SetKey("new-password")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "new-password")
	assert.ErrorContains(t, err, KeyEnv)

	assert.Error(t, k.SetKey(""))
	assert.Error(t, k.DeleteKey())
}
