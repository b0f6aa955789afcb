package local_test

import (
	"context"
	"testing"

	"github.com/enoveri/go-access"
	"github.com/enoveri/go-access/provider/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		store := local.NewIdentityStore()
		account, err := store.Register("Ann@Pharmacy.Test", "s3cret-password", true)
		require.NoError(t, err)

		identity, err := store.Authenticate(ctx, "ann@pharmacy.test", "s3cret-password")
		require.NoError(t, err)
		assert.Equal(t, account.SubjectID, identity.SubjectID)
		assert.Equal(t, "ann@pharmacy.test", identity.Email)
		assert.True(t, identity.EmailConfirmed)

		current, err := store.CurrentIdentity(ctx)
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Equal(t, identity.SubjectID, current.SubjectID)
	})

	t.Run("wrong password", func(t *testing.T) {
		store := local.NewIdentityStore()
		_, err := store.Register("ann@pharmacy.test", "s3cret-password", true)
		require.NoError(t, err)

		_, err = store.Authenticate(ctx, "ann@pharmacy.test", "nope")
		require.Error(t, err)
		assert.True(t, access.IsInvalidCredentials(err))
	})

	t.Run("unknown account", func(t *testing.T) {
		store := local.NewIdentityStore()

		_, err := store.Authenticate(ctx, "ghost@pharmacy.test", "whatever")
		require.Error(t, err)
		assert.True(t, access.IsInvalidCredentials(err))
	})

	t.Run("unconfirmed email", func(t *testing.T) {
		store := local.NewIdentityStore()
		_, err := store.Register("ann@pharmacy.test", "s3cret-password", false)
		require.NoError(t, err)

		_, err = store.Authenticate(ctx, "ann@pharmacy.test", "s3cret-password")
		require.Error(t, err)
		assert.True(t, access.IsEmailUnconfirmed(err))

		store.Confirm("ann@pharmacy.test")
		_, err = store.Authenticate(ctx, "ann@pharmacy.test", "s3cret-password")
		require.NoError(t, err)
	})
}

func TestLocalSignOut(t *testing.T) {
	ctx := context.Background()
	store := local.NewIdentityStore()

	_, err := store.Register("ann@pharmacy.test", "s3cret-password", true)
	require.NoError(t, err)

	var changes []access.AuthChange
	store.Subscribe(func(change access.AuthChange) {
		changes = append(changes, change)
	})

	_, err = store.Authenticate(ctx, "ann@pharmacy.test", "s3cret-password")
	require.NoError(t, err)

	require.NoError(t, store.SignOut(ctx))

	current, err := store.CurrentIdentity(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)

	require.Len(t, changes, 2)
	assert.Equal(t, access.AuthChangeSignedIn, changes[0].Type)
	assert.Equal(t, access.AuthChangeSignedOut, changes[1].Type)
}

func TestLocalSubscribeUnsubscribe(t *testing.T) {
	ctx := context.Background()
	store := local.NewIdentityStore()

	_, err := store.Register("ann@pharmacy.test", "s3cret-password", true)
	require.NoError(t, err)

	calls := 0
	unsubscribe := store.Subscribe(func(access.AuthChange) { calls++ })

	_, err = store.Authenticate(ctx, "ann@pharmacy.test", "s3cret-password")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	unsubscribe()
	require.NoError(t, store.SignOut(ctx))
	assert.Equal(t, 1, calls)
}

func TestHashPassword(t *testing.T) {
	hash, err := local.HashPassword("s3cret-password")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-password", hash)

	assert.NoError(t, local.ComparePasswordAndHash("s3cret-password", hash))
	assert.Error(t, local.ComparePasswordAndHash("wrong", hash))

	_, err = local.HashPassword("")
	require.Error(t, err)
}
