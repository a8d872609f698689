package content

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SkinPackager writes one output file per skin pack into outDir.
type SkinPackager interface {
	PackageSkin(ctx context.Context, pack ExtractedPack, outDir string) error
}

// BatchPackager is invoked once over a whole addon or DLC batch. The key
// file paths are passed through for license handling.
type BatchPackager interface {
	PackageBatch(ctx context.Context, packs []ExtractedPack, outDir, keyPath, personalKeyPath string, addon bool) error
}

// ZipSkinPackager zips a skin pack folder into <name>.mcpack.
type ZipSkinPackager struct{}

func (ZipSkinPackager) PackageSkin(_ context.Context, pack ExtractedPack, outDir string) error {
	out := filepath.Join(outDir, pack.SourceName+".mcpack")
	return zipFolder(pack.Dir, out)
}

// ArchiveBatchPackager packages extracted pack folders without key-based
// transformation. Addon batches combine into one .mcaddon; DLC packs are
// written individually as .mcpack, or .mctemplate for world templates.
type ArchiveBatchPackager struct{}

func (ArchiveBatchPackager) PackageBatch(_ context.Context, packs []ExtractedPack, outDir, _, _ string, addon bool) error {
	if len(packs) == 0 {
		return nil
	}
	if addon {
		return packAddon(packs, outDir)
	}
	for _, pack := range packs {
		ext := ".mcpack"
		if isWorldTemplate(pack.Dir) {
			ext = ".mctemplate"
		}
		if err := zipFolder(pack.Dir, filepath.Join(outDir, pack.SourceName+ext)); err != nil {
			return err
		}
	}
	return nil
}

// packAddon zips each behavior/resource folder and combines them into a
// single .mcaddon named after the first pack.
func packAddon(packs []ExtractedPack, outDir string) error {
	target := filepath.Join(outDir, packs[0].SourceName+".mcaddon")
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create addon archive: %w", err)
	}
	writer := zip.NewWriter(out)
	for _, pack := range packs {
		inner, err := writer.Create(pack.SourceName + ".mcpack")
		if err != nil {
			writer.Close()
			out.Close()
			return err
		}
		if err := zipFolderTo(pack.Dir, inner); err != nil {
			writer.Close()
			out.Close()
			return err
		}
	}
	if err := writer.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func isWorldTemplate(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "levelname.txt"))
	return err == nil
}

// zipFolder writes the folder's contents (relative paths) into a new zip
// file at target.
func zipFolder(dir, target string) error {
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	writer := zip.NewWriter(out)
	if err := addFolderToZip(writer, dir); err != nil {
		writer.Close()
		out.Close()
		os.Remove(target)
		return err
	}
	if err := writer.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// zipFolderTo streams a zip of the folder into an already-open writer,
// used for nesting pack archives inside an .mcaddon.
func zipFolderTo(dir string, w io.Writer) error {
	writer := zip.NewWriter(w)
	if err := addFolderToZip(writer, dir); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

// zipNamedFiles writes the named files from dir into a new zip at target,
// storing each under its base name.
func zipNamedFiles(dir string, names []string, target string) error {
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	writer := zip.NewWriter(out)
	for _, name := range names {
		path := filepath.Join(dir, name)
		src, err := os.Open(path)
		if err != nil {
			writer.Close()
			out.Close()
			return err
		}
		entry, err := writer.Create(name)
		if err == nil {
			_, err = io.Copy(entry, src)
		}
		src.Close()
		if err != nil {
			writer.Close()
			out.Close()
			return err
		}
	}
	if err := writer.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func addFolderToZip(writer *zip.Writer, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		entry, err := writer.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(entry, src)
		return err
	})
}
