package keys

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestRingSubstringMatch(t *testing.T) {
	dir := t.TempDir()
	shared := filepath.Join(dir, "keys.tsv")
	personal := filepath.Join(dir, "personal_keys.tsv")
	writeFile(t, shared, "Some Pack\t11111111-2222-3333-4444-555555555555\tAAAA\n")
	writeFile(t, personal, "Other Pack\t99999999-8888-7777-6666-555555555555\tBBBB\n")

	r := Load(shared, personal)
	if !r.HasAny("11111111-2222-3333-4444-555555555555") {
		t.Fatalf("expected shared key match")
	}
	if !r.HasAny("99999999-8888-7777-6666-555555555555") {
		t.Fatalf("expected personal key match")
	}
	if r.HasAny("00000000-0000-0000-0000-000000000000") {
		t.Fatalf("expected no match for unknown id")
	}
}

func TestRingMultipleIdentifiers(t *testing.T) {
	dir := t.TempDir()
	shared := filepath.Join(dir, "keys.tsv")
	writeFile(t, shared, "pack\tabc-123\tkey\n")

	r := Load(shared, filepath.Join(dir, "personal_keys.tsv"))
	if !r.HasAny("nope", "abc-123") {
		t.Fatalf("expected match when any identifier matches")
	}
	if r.HasAny("") {
		t.Fatalf("empty identifier must not match")
	}
}

func TestRingMissingFiles(t *testing.T) {
	dir := t.TempDir()
	r := Load(filepath.Join(dir, "keys.tsv"), filepath.Join(dir, "personal_keys.tsv"))
	if !r.Empty() {
		t.Fatalf("expected empty ring")
	}
	if r.HasAny("anything") {
		t.Fatalf("empty ring must not match")
	}
}
