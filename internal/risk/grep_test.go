package risk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrepTree(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	write("deploy.py", "restore('config.bak')\nprint('config.bak')\n")
	write("docs/notes.md", "keep config.bak around\n")
	write("binary.dat", "config.bak") // wrong extension, ignored
	write(".git/hook.py", "config.bak")

	n, err := GrepTree(root, "config.bak")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestGrepTreeIgnoresSelf(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "self.py"), []byte("self.py\nself.py\n"), 0644))

	n, err := GrepTree(root, "self.py")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGrepTreeNoMatches(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0644))

	n, err := GrepTree(root, "missing.bak")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
