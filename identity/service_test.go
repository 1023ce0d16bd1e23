package identity

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/YasiruR/mule-sync/domain/models"
	"github.com/YasiruR/mule-sync/domain/services"
	"github.com/YasiruR/mule-sync/graph"
	"github.com/YasiruR/mule-sync/graph/paths"
	"github.com/YasiruR/mule-sync/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *graph.Store) {
	l := log.NewLogger(false, ``)
	s := graph.NewStore(l)
	t.Cleanup(s.Close)
	return NewService(s, l), s
}

func TestSignedOutIsUnavailable(t *testing.T) {
	svc, _ := newTestService(t)

	_, ok := svc.Current()
	assert.False(t, ok)

	_, err := svc.SharedSecret(`whatever`)
	assert.ErrorIs(t, err, services.ErrNoSession)
	assert.ErrorIs(t, svc.Save(filepath.Join(t.TempDir(), `keys.json`)), services.ErrNoSession)

	_, err = svc.SignIn(`  `)
	assert.Error(t, err)
}

func TestSignInPublishesProfile(t *testing.T) {
	svc, store := newTestService(t)

	id, err := svc.SignIn(`alice`)
	require.NoError(t, err)

	cur, ok := svc.Current()
	require.True(t, ok)
	assert.Equal(t, id, cur)

	epub, err := svc.EncryptionKey(context.Background(), id.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, id.EncPublicKey, epub)

	_, err = svc.EncryptionKey(context.Background(), `unknown`)
	assert.ErrorIs(t, err, services.ErrNoEncryptionKey)

	svc.SignOut()
	_, ok = svc.Current()
	assert.False(t, ok)

	// the profile outlives the session
	n, err := store.Get(context.Background(), `~`+id.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, `alice`, n[`alias`])
}

func TestPairwiseEncryption(t *testing.T) {
	a, store := newTestService(t)
	b := NewService(store, log.NewLogger(false, ``))

	ida, err := a.SignIn(`alice`)
	require.NoError(t, err)
	idb, err := b.SignIn(`bob`)
	require.NoError(t, err)

	sa, err := a.SharedSecret(idb.EncPublicKey)
	require.NoError(t, err)
	sb, err := b.SharedSecret(ida.EncPublicKey)
	require.NoError(t, err)

	env, err := a.Encrypt(`hello`, sa)
	require.NoError(t, err)
	msg, err := b.Decrypt(env, sb)
	require.NoError(t, err)
	assert.Equal(t, `hello`, msg)

	_, err = b.Decrypt(`garbage`, sb)
	assert.ErrorIs(t, err, services.ErrDecrypt)
}

func TestSaveAndRecall(t *testing.T) {
	svc, _ := newTestService(t)
	id, err := svc.SignIn(`alice`)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), `keys.json`)
	require.NoError(t, svc.Save(path))

	other, _ := newTestService(t)
	recalled, err := other.Recall(path)
	require.NoError(t, err)
	assert.Equal(t, id, recalled)

	_, err = other.Recall(filepath.Join(t.TempDir(), `missing.json`))
	assert.Error(t, err)
}

func TestTamperedProfileIsRejected(t *testing.T) {
	a, store := newTestService(t)
	b := NewService(store, log.NewLogger(false, ``))
	m := NewService(store, log.NewLogger(false, ``))
	ctx := context.Background()

	ida, err := a.SignIn(`alice`)
	require.NoError(t, err)
	_, err = b.SignIn(`bob`)
	require.NoError(t, err)
	idm, err := m.SignIn(`mallory`)
	require.NoError(t, err)

	epub, err := b.EncryptionKey(ctx, ida.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, ida.EncPublicKey, epub)

	// a single field merged over the signed profile
	require.NoError(t, store.Put(paths.User(ida.PublicKey), models.Node{models.FieldEpub: idm.EncPublicKey}))
	_, err = b.EncryptionKey(ctx, ida.PublicKey)
	assert.ErrorIs(t, err, services.ErrNoEncryptionKey)

	// a complete profile signed by someone else
	forged := models.Identity{Alias: `alice`, PublicKey: ida.PublicKey, EncPublicKey: idm.EncPublicKey}
	sig, err := m.Sign(models.ProfilePayload(forged.Alias, forged.PublicKey, forged.EncPublicKey))
	require.NoError(t, err)
	require.NoError(t, store.Put(paths.User(ida.PublicKey), forged.ProfileNode(sig)))
	_, err = b.EncryptionKey(ctx, ida.PublicKey)
	assert.ErrorIs(t, err, services.ErrNoEncryptionKey)

	// the owner signing in again restores the profile
	path := filepath.Join(t.TempDir(), `keys.json`)
	require.NoError(t, a.Save(path))
	_, err = a.Recall(path)
	require.NoError(t, err)
	epub, err = b.EncryptionKey(ctx, ida.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, ida.EncPublicKey, epub)
}

func TestSignRequiresSession(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Sign([]byte(`data`))
	assert.ErrorIs(t, err, services.ErrNoSession)
}
