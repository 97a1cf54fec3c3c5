package raster

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// sidecars are archive members that never hold the grid itself.
var sidecars = map[string]bool{
	".xml": true, ".txt": true, ".hdr": true, ".prj": true, ".stx": true,
	".csv": true, ".aux": true, ".html": true, ".md5": true,
}

// Decompress extracts src into dir and returns the extracted regular files
// in archive order. Supported: .gz, .tar, .tar.gz, .tgz, .zip.
func Decompress(src, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	name := strings.ToLower(filepath.Base(src))
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		f, err := os.Open(src)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gunzip %s: %w", src, err)
		}
		defer zr.Close()
		return extractTar(zr, dir)
	case strings.HasSuffix(name, ".tar"):
		f, err := os.Open(src)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return extractTar(f, dir)
	case strings.HasSuffix(name, ".gz"):
		return gunzip(src, dir)
	case strings.HasSuffix(name, ".zip"):
		return unzip(src, dir)
	}
	return nil, fmt.Errorf("decompress %s: unsupported archive", src)
}

// DecompressAll extracts src into dir and then gunzips every extracted .gz
// member in place, removing the compressed copy.
func DecompressAll(src, dir string) ([]string, error) {
	files, err := Decompress(src, dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		if !strings.HasSuffix(strings.ToLower(f), ".gz") {
			out = append(out, f)
			continue
		}
		inner, err := gunzip(f, filepath.Dir(f))
		if err != nil {
			return nil, err
		}
		if err := os.Remove(f); err != nil {
			return nil, err
		}
		out = append(out, inner...)
	}
	return out, nil
}

// PrimaryFile picks the first extracted file that is not a sidecar.
func PrimaryFile(files []string) (string, bool) {
	for _, f := range files {
		if !sidecars[strings.ToLower(filepath.Ext(f))] {
			return f, true
		}
	}
	return "", false
}

func gunzip(src, dir string) ([]string, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gunzip %s: %w", src, err)
	}
	defer zr.Close()

	dst := filepath.Join(dir, strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)))
	if err := writeFile(dst, zr); err != nil {
		return nil, err
	}
	return []string{dst}, nil
}

func extractTar(r io.Reader, dir string) ([]string, error) {
	tr := tar.NewReader(r)
	var files []string
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		dst, err := memberPath(dir, hdr.Name)
		if err != nil {
			return nil, err
		}
		if err := writeFile(dst, tr); err != nil {
			return nil, err
		}
		files = append(files, dst)
	}
}

func unzip(src, dir string) ([]string, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("unzip %s: %w", src, err)
	}
	defer zr.Close()

	var files []string
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		dst, err := memberPath(dir, zf.Name)
		if err != nil {
			return nil, err
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("unzip %s: %w", zf.Name, err)
		}
		err = writeFile(dst, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, dst)
	}
	return files, nil
}

// memberPath resolves an archive member name under dir, rejecting names that escape it.
func memberPath(dir, name string) (string, error) {
	dst := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, dst)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive member %q escapes %s", name, dir)
	}
	return dst, nil
}

func writeFile(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return out.Close()
}
