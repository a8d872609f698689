package keys

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lyssadev/MarkPEWeb/core/infra/config"
)

func TestDefaultURLDecoding(t *testing.T) {
	keysURL := DefaultKeysURL()
	listURL := DefaultListURL()
	if !strings.HasPrefix(keysURL, "https://") || !strings.HasPrefix(listURL, "https://") {
		t.Fatalf("decoded urls look wrong: %q %q", keysURL, listURL)
	}
	if keysURL == listURL {
		t.Fatalf("feeds must differ")
	}
}

func newUpdater(t *testing.T, feedURL, listURL string) (*Updater, string) {
	t.Helper()
	dir := t.TempDir()
	store := config.NewSettingsStore(filepath.Join(dir, "settings.json"))
	if err := store.Save(config.Settings{KeyFeedURL: feedURL, ListFeedURL: listURL}); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	u := NewUpdater(store, filepath.Join(dir, "keys.tsv"), filepath.Join(dir, "list.txt"))
	return u, dir
}

func TestUpdateKeysWritesNewFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("pack one\tuuid-1\tkey1\npack two\tuuid-2\tkey2\n"))
	}))
	defer srv.Close()

	u, _ := newUpdater(t, srv.URL, "")
	added, updated, err := u.UpdateKeys(context.Background(), false)
	if err != nil {
		t.Fatalf("UpdateKeys: %v", err)
	}
	if !updated || added != 2 {
		t.Fatalf("expected 2 added lines, got added=%d updated=%v", added, updated)
	}

	raw, err := os.ReadFile(u.KeyPath)
	if err != nil {
		t.Fatalf("read key file: %v", err)
	}
	if !strings.Contains(string(raw), "uuid-2") {
		t.Fatalf("key file missing remote content: %s", raw)
	}
}

func TestUpdateKeysNoChange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("pack\tuuid-1\tkey\n"))
	}))
	defer srv.Close()

	u, _ := newUpdater(t, srv.URL, "")
	if err := os.WriteFile(u.KeyPath, []byte("pack\tuuid-1\tkey\n"), 0o644); err != nil {
		t.Fatalf("seed key file: %v", err)
	}
	_, updated, err := u.UpdateKeys(context.Background(), false)
	if err != nil {
		t.Fatalf("UpdateKeys: %v", err)
	}
	if updated {
		t.Fatalf("expected no rewrite for identical content")
	}
}

func TestUpdateKeysDisabled(t *testing.T) {
	u, dir := newUpdater(t, "http://should-not-be-called.invalid", "")
	store := config.NewSettingsStore(filepath.Join(dir, "settings.json"))
	if err := store.Save(config.Settings{KeyFeedURL: "http://should-not-be-called.invalid", UpdateKeys: "False"}); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	u.Store = store
	_, updated, err := u.UpdateKeys(context.Background(), false)
	if err != nil {
		t.Fatalf("UpdateKeys: %v", err)
	}
	if updated {
		t.Fatalf("disabled updater must not fetch")
	}
}

func TestUpdateKeysFeedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	u, _ := newUpdater(t, srv.URL, "")
	if _, _, err := u.UpdateKeys(context.Background(), false); err == nil {
		t.Fatalf("expected error for 500 feed")
	}
}

func TestUpdateListReportsNewEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("Known Pack\nBrand New Pack\n"))
	}))
	defer srv.Close()

	u, _ := newUpdater(t, "", srv.URL)
	if err := os.WriteFile(u.ListPath, []byte("Known Pack\n"), 0o644); err != nil {
		t.Fatalf("seed list: %v", err)
	}
	fresh, err := u.UpdateList(context.Background(), false)
	if err != nil {
		t.Fatalf("UpdateList: %v", err)
	}
	if len(fresh) != 1 || fresh[0] != "Brand New Pack" {
		t.Fatalf("unexpected new entries: %#v", fresh)
	}
}

func TestUpdateListNormalizesText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("Fancy\x00 Pack\xc3\xa9\n"))
	}))
	defer srv.Close()

	u, _ := newUpdater(t, "", srv.URL)
	fresh, err := u.UpdateList(context.Background(), false)
	if err != nil {
		t.Fatalf("UpdateList: %v", err)
	}
	if len(fresh) != 1 || fresh[0] != "Fancy Pack" {
		t.Fatalf("expected normalized entry, got %#v", fresh)
	}
}

func TestDecryptFeedRoundTrip(t *testing.T) {
	plain := []byte("line one\nline two\n")
	block, err := aes.NewCipher(feedAESKey)
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(append([]byte{}, plain...), bytes.Repeat([]byte{byte(pad)}, pad)...)
	iv := bytes.Repeat([]byte{7}, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	payload := append(append([]byte{}, iv...), ciphertext...)

	out, err := decryptFeed(payload, feedAESKey)
	if err != nil {
		t.Fatalf("decryptFeed: %v", err)
	}
	if !bytes.Equal(out, plain) {
		t.Fatalf("round trip mismatch: %q", out)
	}
}

func TestDecryptFeedRejectsGarbage(t *testing.T) {
	if _, err := decryptFeed([]byte("short"), feedAESKey); err == nil {
		t.Fatalf("expected error for short payload")
	}
	if _, err := decryptFeed(bytes.Repeat([]byte{1}, aes.BlockSize+5), feedAESKey); err == nil {
		t.Fatalf("expected error for unaligned payload")
	}
}
