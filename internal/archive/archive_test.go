package archive

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndExtractRoundTrip(t *testing.T) {
	src := t.TempDir()
	fileA := filepath.Join(src, "a.bak")
	fileB := filepath.Join(src, "sub", "b.bak")
	require.NoError(t, os.WriteFile(fileA, []byte("alpha"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Dir(fileB), 0755))
	require.NoError(t, os.WriteFile(fileB, []byte("beta"), 0644))

	dest := filepath.Join(t.TempDir(), "snap.tar.gz")
	ar := NewTarGz()
	require.NoError(t, ar.Create(src, []string{fileA, fileB}, dest))

	out := t.TempDir()
	require.NoError(t, ar.Extract(dest, out))

	data, err := os.ReadFile(filepath.Join(out, "a.bak"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))

	data, err = os.ReadFile(filepath.Join(out, "sub", "b.bak"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(data))
}

func TestCreateSkipsMissingFiles(t *testing.T) {
	src := t.TempDir()
	real := filepath.Join(src, "real.bak")
	require.NoError(t, os.WriteFile(real, []byte("x"), 0644))

	dest := filepath.Join(t.TempDir(), "snap.tar.gz")
	ar := NewTarGz()
	require.NoError(t, ar.Create(src, []string{real, filepath.Join(src, "gone.bak")}, dest))

	out := t.TempDir()
	require.NoError(t, ar.Extract(dest, out))
	_, err := os.Stat(filepath.Join(out, "real.bak"))
	assert.NoError(t, err)
}

func TestCreateEmptyArchive(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "empty.tar.gz")
	ar := NewTarGz()
	require.NoError(t, ar.Create(t.TempDir(), nil, dest))
	require.NoError(t, ar.Extract(dest, t.TempDir()))
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "evil.tar.gz")
	f, err := os.Create(dest)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "../escape.txt",
		Mode:     0644,
		Size:     4,
		Typeflag: tar.TypeReg,
	}))
	_, err = tw.Write([]byte("evil"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	out := t.TempDir()
	err = NewTarGz().Extract(dest, out)
	assert.ErrorContains(t, err, "escapes destination")
	_, statErr := os.Stat(filepath.Join(filepath.Dir(out), "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractOverwritesExisting(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "f.bak")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0644))

	dest := filepath.Join(t.TempDir(), "snap.tar.gz")
	ar := NewTarGz()
	require.NoError(t, ar.Create(src, []string{path}, dest))

	// simulate the file changing after the snapshot
	require.NoError(t, os.WriteFile(path, []byte("modified"), 0644))
	require.NoError(t, ar.Extract(dest, src))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}
