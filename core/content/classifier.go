package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

type manifestFile struct {
	Metadata struct {
		ProductType string `json:"product_type"`
	} `json:"metadata"`
	Header struct {
		UUID string `json:"uuid"`
	} `json:"header"`
}

// Classify reads the pack's manifest.json. A missing manifest is not an
// error and yields the zero ManifestInfo; a malformed one is a per-folder
// failure for the caller to record.
func Classify(dir string) (ManifestInfo, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ManifestInfo{}, nil
		}
		return ManifestInfo{}, fmt.Errorf("read manifest: %w", err)
	}
	var m manifestFile
	if err := json.Unmarshal(raw, &m); err != nil {
		return ManifestInfo{}, fmt.Errorf("parse manifest: %w", err)
	}
	return ManifestInfo{
		UniqueID: m.Header.UUID,
		IsAddon:  m.Metadata.ProductType == "addon",
	}, nil
}
