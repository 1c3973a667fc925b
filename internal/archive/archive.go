// Package archive provides the tar.gz snapshot capability used by recovery
// points.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Archiver creates and extracts snapshot archives. Paths inside an archive
// are stored relative to the root passed at creation time.
type Archiver interface {
	Create(root string, paths []string, dest string) error
	Extract(src string, destRoot string) error
}

// TarGz is the production Archiver.
type TarGz struct{}

func NewTarGz() *TarGz { return &TarGz{} }

// Create writes a gzip-compressed tar of the given files to dest. Missing
// files are skipped so a snapshot taken mid-churn still succeeds; an empty
// path list yields a valid empty archive.
func (TarGz) Create(root string, paths []string, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", dest, err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	for _, p := range paths {
		if err := addFile(tw, root, p); err != nil {
			tw.Close()
			gz.Close()
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("archive: close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("archive: close gzip: %w", err)
	}
	return out.Sync()
}

func addFile(tw *tar.Writer, root, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("archive: stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	name, err := filepath.Rel(root, path)
	if err != nil {
		name = path
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("archive: header %s: %w", path, err)
	}
	hdr.Name = filepath.ToSlash(name)

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("archive: write header %s: %w", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("archive: copy %s: %w", path, err)
	}
	return nil
}

// Extract unpacks src over destRoot. Entries that would escape destRoot are
// rejected.
func (TarGz) Extract(src string, destRoot string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", src, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("archive: gzip %s: %w", src, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("archive: read %s: %w", src, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		target := filepath.Join(destRoot, filepath.FromSlash(hdr.Name))
		rel, err := filepath.Rel(destRoot, target)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("archive: entry escapes destination: %s", hdr.Name)
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("archive: mkdir for %s: %w", target, err)
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode)&0777)
		if err != nil {
			return fmt.Errorf("archive: create %s: %w", target, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("archive: extract %s: %w", target, err)
		}
		if err := out.Close(); err != nil {
			return err
		}
	}
}
