package storage

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	path, err := store.Save("intakes/b1/roster.csv", []byte("name\nAhmed\n"))
	require.NoError(t, err)
	require.Equal(t, "intakes/b1/roster.csv", path)

	data, err := store.Read(path)
	require.NoError(t, err)
	require.Equal(t, "name\nAhmed\n", string(data))

	f, err := store.Open(path)
	require.NoError(t, err)
	streamed, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Equal(t, data, streamed)

	require.NoError(t, store.Delete(path))
	require.NoError(t, store.Delete(path))
	_, err = store.Read(path)
	require.Error(t, err)
}

func TestLocalStorageRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../outside.csv", []byte("x"))
	require.Error(t, err)
	_, err = store.Read("/etc/passwd")
	require.Error(t, err)
	_, err = store.Save("", []byte("x"))
	require.Error(t, err)
}
