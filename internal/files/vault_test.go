package files

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVault_RoundTrip(t *testing.T) {
	v, err := NewMemVault()
	require.NoError(t, err)

	require.NoError(t, v.Write("backups/pocket-reporter.json", []byte(`{"version":1}`)))
	require.NoError(t, v.Write("bundles/story.zip", []byte("PK")))

	data, err := v.Read("backups/pocket-reporter.json")
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(data))

	names, err := v.List("backups")
	require.NoError(t, err)
	assert.Equal(t, []string{"pocket-reporter.json"}, names)

	ok, err := v.Exists("bundles/story.zip")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, v.Remove("bundles/story.zip"))
	ok, err = v.Exists("bundles/story.zip")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVault_MissingFile(t *testing.T) {
	v, err := NewMemVault()
	require.NoError(t, err)

	_, err = v.Read("nope.json")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	names, err := v.List("nowhere")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestVault_RejectsEscapingPaths(t *testing.T) {
	v, err := NewMemVault()
	require.NoError(t, err)

	assert.Error(t, v.Write("../outside.json", []byte("x")))
	assert.Error(t, v.Write("/abs.json", []byte("x")))
}

func TestVault_RemoveAll(t *testing.T) {
	v, err := NewMemVault()
	require.NoError(t, err)
	require.NoError(t, v.Write("a.json", []byte("a")))
	require.NoError(t, v.Write("nested/b.zip", []byte("b")))

	require.NoError(t, v.RemoveAll())

	names, err := v.List(".")
	require.NoError(t, err)
	assert.Empty(t, names)
	ok, err := v.Exists("nested/b.zip")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, v.Write("after.json", []byte("c")), "vault stays usable")
}

func TestVault_OSDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reporter-data")
	v, err := NewOSVault(dir)
	require.NoError(t, err)

	require.NoError(t, v.Write("bundles/x.zip", []byte("zip")))

	data, err := os.ReadFile(filepath.Join(dir, "bundles", "x.zip"))
	require.NoError(t, err)
	assert.Equal(t, "zip", string(data))

	require.NoError(t, v.RemoveAll())
	_, err = os.Stat(dir)
	assert.NoError(t, err, "root directory survives RemoveAll")
}
