package keys

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/lyssadev/MarkPEWeb/core/infra/logging"
)

// Ring holds the decryption key lines loaded from the shared and personal
// key files. Lookups are coarse substring containment over whole lines.
type Ring struct {
	lines []string

	sharedPath   string
	personalPath string
}

// Load reads both key files. A missing shared file is reported once as a
// warning; a missing personal file is ignored.
func Load(sharedPath, personalPath string) *Ring {
	r := &Ring{sharedPath: sharedPath, personalPath: personalPath}

	shared, err := readLines(sharedPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.Warn("keys", "shared key file missing", "path", sharedPath)
		} else {
			logging.Warn("keys", "shared key file unreadable", "path", sharedPath, "error", err)
		}
	}
	r.lines = append(r.lines, shared...)

	personal, err := readLines(personalPath)
	if err == nil {
		r.lines = append(r.lines, personal...)
	}
	return r
}

func readLines(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

// HasAny reports whether any loaded line contains any of the given
// identifiers as a substring.
func (r *Ring) HasAny(ids ...string) bool {
	for _, line := range r.lines {
		for _, id := range ids {
			if id != "" && strings.Contains(line, id) {
				return true
			}
		}
	}
	return false
}

// Empty reports whether no key lines were loaded at all.
func (r *Ring) Empty() bool {
	return len(r.lines) == 0
}

// SharedPath returns the shared key file path the ring was loaded from.
func (r *Ring) SharedPath() string { return r.sharedPath }

// PersonalPath returns the personal key file path the ring was loaded from.
func (r *Ring) PersonalPath() string { return r.personalPath }
