package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-maldridge/nbrew/pkg/storage"
)

func TestSQLiteStore(t *testing.T) {
	s, err := open(hclog.NewNullLogger(), filepath.Join(t.TempDir(), "nbrew.db"))
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Get([]byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.Put([]byte("k"), []byte("one")))
	require.NoError(t, s.Put([]byte("k"), []byte("two")))
	v, err = s.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(v))

	require.NoError(t, s.Del([]byte("k")))
	v, err = s.Get([]byte("k"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestInitializeThroughRegistry(t *testing.T) {
	t.Setenv("NBREW_SQLITE_PATH", filepath.Join(t.TempDir(), "reg.db"))
	storage.SetLogger(hclog.NewNullLogger())
	storage.DoCallbacks()

	s, err := storage.Initialize("sqlite")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Put([]byte("a"), []byte("b")))

	_, err = storage.Initialize("nope")
	var unknown *storage.ErrUnknownFactory
	assert.ErrorAs(t, err, &unknown)
	assert.Contains(t, err.Error(), "sqlite")
	assert.Contains(t, storage.Stores(), "sqlite")
}
