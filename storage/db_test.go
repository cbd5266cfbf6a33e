package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBMissingKey(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	_, err := db.Get([]byte("absent"))
	require.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := NewLevelDB(dir)
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("tip"), []byte{0x01, 0x02}))
	db.Close()

	reopened, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get([]byte("tip"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, got)

	_, err = reopened.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)
	require.Same(t, reopened.TrieDB(), reopened.TrieDB())
}
