package keys

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/lyssadev/MarkPEWeb/core/infra/config"
	"github.com/lyssadev/MarkPEWeb/core/infra/logging"
)

const feedXORKey = 42

var (
	encodedListURL = []byte{
		0x42, 0x5E, 0x5E, 0x5A, 0x59, 0x10, 0x05, 0x05, 0x59, 0x5F, 0x44, 0x4C,
		0x46, 0x45, 0x5D, 0x4F, 0x58, 0x1A, 0x1B, 0x04, 0x5C, 0x4F, 0x58, 0x49,
		0x4F, 0x46, 0x04, 0x4B, 0x5A, 0x5A, 0x05, 0x48, 0x43, 0x44, 0x19, 0x18,
		0x1E, 0x18, 0x1C, 0x1F,
	}
	encodedKeysURL = []byte{
		0x42, 0x5E, 0x5E, 0x5A, 0x59, 0x10, 0x05, 0x05, 0x59, 0x5F, 0x44, 0x4C,
		0x46, 0x45, 0x5D, 0x4F, 0x58, 0x1A, 0x1B, 0x04, 0x5C, 0x4F, 0x58, 0x49,
		0x4F, 0x46, 0x04, 0x4B, 0x5A, 0x5A, 0x05, 0x48, 0x43, 0x44, 0x19, 0x1E,
		0x1D, 0x1C, 0x12,
	}
	feedAESKey = []byte("Nz9K1WvfZ5bEN2rjpzyURRDIB7zJ1ojb")

	printableRe = regexp.MustCompile(`[^\x20-\x7E]`)
)

func xorDecode(data []byte, key byte) string {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key
	}
	return string(out)
}

// DefaultKeysURL returns the built-in key feed endpoint.
func DefaultKeysURL() string { return xorDecode(encodedKeysURL, feedXORKey) }

// DefaultListURL returns the built-in content list endpoint.
func DefaultListURL() string { return xorDecode(encodedListURL, feedXORKey) }

// Updater refreshes the shared key file and the content list from remote
// feeds. The built-in key feed is AES encrypted; user-supplied override
// URLs from settings are fetched as plaintext.
type Updater struct {
	Client   *http.Client
	Store    *config.SettingsStore
	KeyPath  string
	ListPath string
}

func NewUpdater(store *config.SettingsStore, keyPath, listPath string) *Updater {
	return &Updater{
		Client:   &http.Client{Timeout: 30 * time.Second},
		Store:    store,
		KeyPath:  keyPath,
		ListPath: listPath,
	}
}

// UpdateKeys fetches the key feed and rewrites the key file when the
// remote content differs. Returns the line-count delta and whether the
// file was rewritten. When the settings disable updates and force is
// false, it does nothing.
func (u *Updater) UpdateKeys(ctx context.Context, force bool) (int, bool, error) {
	settings, err := u.Store.Load()
	if err != nil {
		return 0, false, fmt.Errorf("load settings: %w", err)
	}
	if !force && !settings.UpdateKeysEnabled() {
		logging.Info("keys", "auto-update disabled")
		return 0, false, nil
	}

	url := settings.KeyFeedURL
	if url == "" {
		url = DefaultKeysURL()
	}
	encrypted := url == DefaultKeysURL()

	remote, err := u.fetchFeed(ctx, url, encrypted)
	if err != nil {
		return 0, false, fmt.Errorf("fetch key feed: %w", err)
	}
	local := readLocalLines(u.KeyPath)
	if equalLines(local, remote) {
		return 0, false, nil
	}
	if err := writeLines(u.KeyPath, remote); err != nil {
		return 0, false, fmt.Errorf("write key file: %w", err)
	}
	added := len(remote) - len(local)
	logging.Info("keys", "key file updated", "added", added)
	return added, true, nil
}

// UpdateList fetches the content list feed and rewrites the list file when
// new entries appear. Returns the new entries.
func (u *Updater) UpdateList(ctx context.Context, force bool) ([]string, error) {
	settings, err := u.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !force && !settings.UpdateKeysEnabled() {
		return nil, nil
	}

	url := settings.ListFeedURL
	if url == "" {
		url = DefaultListURL()
	}
	remote, err := u.fetchFeed(ctx, url, false)
	if err != nil {
		return nil, fmt.Errorf("fetch list feed: %w", err)
	}
	local := readLocalLines(u.ListPath)
	for i, line := range local {
		local[i] = normalizeText(line)
	}
	for i, line := range remote {
		remote[i] = normalizeText(line)
	}

	seen := make(map[string]struct{}, len(local))
	for _, line := range local {
		seen[line] = struct{}{}
	}
	var fresh []string
	for _, line := range remote {
		if _, ok := seen[line]; !ok {
			fresh = append(fresh, line)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	if err := writeLines(u.ListPath, remote); err != nil {
		return nil, fmt.Errorf("write list file: %w", err)
	}
	logging.Info("keys", "content list updated", "added", len(fresh))
	return fresh, nil
}

func (u *Updater) fetchFeed(ctx context.Context, url string, encrypted bool) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := u.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if encrypted {
		body, err = decryptFeed(body, feedAESKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt feed: %w", err)
		}
	}
	var lines []string
	for _, line := range strings.Split(string(body), "\n") {
		lines = append(lines, strings.TrimSpace(line))
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines, nil
}

// decryptFeed decrypts an AES-CBC payload whose IV is the first block,
// removing PKCS7 padding.
func decryptFeed(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) < aes.BlockSize || (len(data)-aes.BlockSize)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("payload length %d is not block aligned", len(data))
	}
	iv := data[:aes.BlockSize]
	ciphertext := data[aes.BlockSize:]
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("payload has no ciphertext")
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	return pkcs7Unpad(plain)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-pad], nil
}

func normalizeText(s string) string {
	return strings.TrimSpace(printableRe.ReplaceAllString(s, ""))
}

func readLocalLines(path string) []string {
	lines, err := readLines(path)
	if err != nil {
		return nil
	}
	return lines
}

func writeLines(path string, lines []string) error {
	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
