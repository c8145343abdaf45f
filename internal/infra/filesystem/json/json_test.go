package json

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	type doc struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, NewWriter().WriteJSON(path, doc{Name: "timelock", Count: 2}))

	exists, err := NewReader().Exists(path)
	require.NoError(t, err)
	require.True(t, exists)

	var got doc
	require.NoError(t, NewReader().ReadJSON(path, &got))
	require.Equal(t, doc{Name: "timelock", Count: 2}, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not be left behind")
}

func TestReadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	var got map[string]any
	err := NewReader().ReadJSON(path, &got)
	require.True(t, errors.Is(err, os.ErrNotExist))

	exists, err := NewReader().Exists(path)
	require.NoError(t, err)
	require.False(t, exists)
}
