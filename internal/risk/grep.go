package risk

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// grepIncludeExts limits the reference search to textual files.
var grepIncludeExts = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true,
	".md": true, ".txt": true,
}

// GrepTree is the production TreeGrep: it walks root and counts lines that
// mention needle in files with a textual extension. The candidate file
// itself does not count as a reference to itself.
func GrepTree(root, needle string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return fs.SkipDir
			}
			return nil
		}
		if !grepIncludeExts[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		if d.Name() == needle {
			return nil
		}
		n, err := countLines(path, needle)
		if err != nil {
			return nil
		}
		count += n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func countLines(path, needle string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if strings.Contains(sc.Text(), needle) {
			n++
		}
	}
	return n, sc.Err()
}
