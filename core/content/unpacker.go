package content

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Unpack extracts the downloaded archive's nested zip entries, one level
// deep, each into a subfolder named after the entry minus extension. The
// nested zips and the top-level archive are removed after extraction.
// Deeper nesting is left untouched inside the extracted trees.
func Unpack(archivePath string) ([]ExtractedPack, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotArchive, err)
	}
	defer reader.Close()

	packDir := filepath.Dir(archivePath)
	var packs []ExtractedPack
	for _, entry := range reader.File {
		if !strings.HasSuffix(entry.Name, ".zip") || entry.FileInfo().IsDir() {
			continue
		}
		name := strings.TrimSuffix(filepath.Base(entry.Name), ".zip")
		nestedZipPath, err := extractEntry(entry, packDir)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", entry.Name, err)
		}
		nestedDir := filepath.Join(packDir, name)
		if err := extractAll(nestedZipPath, nestedDir); err != nil {
			return nil, err
		}
		os.Remove(nestedZipPath)
		packs = append(packs, ExtractedPack{SourceName: name, Dir: nestedDir})
	}
	reader.Close()
	os.Remove(archivePath)
	return packs, nil
}

func extractAll(zipPath, destDir string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotArchive, err)
	}
	defer reader.Close()
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	for _, entry := range reader.File {
		if _, err := extractEntry(entry, destDir); err != nil {
			return fmt.Errorf("extract %s: %w", entry.Name, err)
		}
	}
	return nil
}

func extractEntry(entry *zip.File, destDir string) (string, error) {
	target, err := safeJoin(destDir, entry.Name)
	if err != nil {
		return "", err
	}
	if entry.FileInfo().IsDir() {
		return target, os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	src, err := entry.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	dst, err := os.Create(target)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", err
	}
	return target, dst.Close()
}

// safeJoin rejects entry names that would escape the destination tree.
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return target, nil
}
