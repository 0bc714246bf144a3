package fsio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainedPath(t *testing.T) {
	root := t.TempDir()

	t.Run("relative path stays under root", func(t *testing.T) {
		p, err := ContainedPath(root, "out/topology.sdsl2")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "out", "topology.sdsl2"), p)
	})

	t.Run("dot-dot escape rejected", func(t *testing.T) {
		_, err := ContainedPath(root, "../outside.sdsl2")
		assert.ErrorContains(t, err, "escapes")
	})

	t.Run("absolute path rejected", func(t *testing.T) {
		_, err := ContainedPath(root, "/etc/passwd")
		assert.ErrorContains(t, err, "must be relative")
	})

	t.Run("interior dot-dot that stays inside is fine", func(t *testing.T) {
		p, err := ContainedPath(root, "a/../b/out.sdsl2")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "b", "out.sdsl2"), p)
	})
}

func TestWriteFileAtomic(t *testing.T) {
	t.Run("creates parents and writes", func(t *testing.T) {
		root := t.TempDir()
		path := filepath.Join(root, "nested", "out.sdsl2")
		require.NoError(t, WriteFileAtomic(path, []byte("@File {}\n")))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "@File {}\n", string(data))
	})

	t.Run("replaces existing content", func(t *testing.T) {
		root := t.TempDir()
		path := filepath.Join(root, "out.sdsl2")
		require.NoError(t, WriteFileAtomic(path, []byte("old")))
		require.NoError(t, WriteFileAtomic(path, []byte("new")))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))
	})

	t.Run("refuses a symlink destination", func(t *testing.T) {
		root := t.TempDir()
		target := filepath.Join(root, "target")
		require.NoError(t, os.WriteFile(target, []byte("x"), 0644))
		link := filepath.Join(root, "link")
		require.NoError(t, os.Symlink(target, link))

		err := WriteFileAtomic(link, []byte("y"))
		assert.ErrorContains(t, err, "symlink")

		data, readErr := os.ReadFile(target)
		require.NoError(t, readErr)
		assert.Equal(t, "x", string(data))
	})

	t.Run("leaves no temp files behind", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, WriteFileAtomic(filepath.Join(root, "out.sdsl2"), []byte("x")))

		entries, err := os.ReadDir(root)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "out.sdsl2", entries[0].Name())
	})
}

func TestReadFileNoFollow(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "target")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))

	data, err := ReadFileNoFollow(target)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(target, link))
	_, err = ReadFileNoFollow(link)
	assert.ErrorContains(t, err, "symlink")
}

func TestWriteArtifact(t *testing.T) {
	root := t.TempDir()

	p, err := WriteArtifact(root, "gen/topology.sdsl2", []byte("content"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "gen", "topology.sdsl2"), p)

	_, err = WriteArtifact(root, "../evil", []byte("content"))
	assert.Error(t, err)
}

func TestWriteArtifactSymlinkedDir(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "gen")))

	_, err := WriteArtifact(root, "gen/topology.sdsl2", []byte("content"))
	assert.ErrorContains(t, err, "symlink")

	entries, readErr := os.ReadDir(outside)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}
