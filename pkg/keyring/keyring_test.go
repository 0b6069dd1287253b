package keyring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gokeyring "github.com/zalando/go-keyring"
)

func TestFileKeyringRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "keyring.json")
	fk := NewFileKeyring(path, "master")

	_, err := fk.Get("svc", "user")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, fk.Set("svc", "user", "p@ss"))
	v, err := fk.Get("svc", "user")
	require.NoError(t, err)
	assert.Equal(t, "p@ss", v)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "p@ss")

	require.NoError(t, fk.Delete("svc", "user"))
	_, err = fk.Get("svc", "user")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileKeyringWrongMasterPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyring.json")
	require.NoError(t, NewFileKeyring(path, "one").Set("svc", "user", "secret"))

	_, err := NewFileKeyring(path, "two").Get("svc", "user")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSecretStoreWithFileBackend(t *testing.T) {
	m := NewManager(BackendFile, filepath.Join(t.TempDir(), "k.json"), "master")
	assert.True(t, m.UsesFile())

	s := NewSecretStore(m, "demo")
	_, ok, err := s.GetSecret("gauss-password")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSecret("gauss-password", "Gen3rated!"))
	v, ok, err := s.GetSecret("gauss-password")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Gen3rated!", v)

	// another application does not see the secret
	other := NewSecretStore(m, "other")
	_, ok, err = other.GetSecret("gauss-password")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSecretStoreWithSystemBackend(t *testing.T) {
	gokeyring.MockInit()

	s := NewSecretStore(NewManager(BackendSystem, "", ""), "demo")
	_, ok, err := s.GetSecret("mongo-password")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSecret("mongo-password", "abc"))
	v, ok, err := s.GetSecret("mongo-password")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.DeleteSecret("mongo-password"))
	require.NoError(t, s.DeleteSecret("mongo-password"))
}

func TestServiceName(t *testing.T) {
	assert.Equal(t, "redb-apphost-demo", ServiceName("demo"))
}
