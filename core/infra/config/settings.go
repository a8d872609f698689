package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"
)

// Settings holds the persisted user settings. URLs override the built-in
// key feed endpoints when set. UpdateKeys is the string "True" or "False"
// for compatibility with existing settings files.
type Settings struct {
	KeyFeedURL   string `json:"tsv,omitempty"`
	ListFeedURL  string `json:"list,omitempty"`
	UpdateKeys   string `json:"UpdateKeys,omitempty"`
	CustomID     string `json:"CUSTOM_ID,omitempty"`
	PlayerSecret string `json:"PLAYER_SECRET,omitempty"`
}

// UpdateKeysEnabled reports whether the key updater should run on startup.
// Anything other than an explicit "False" means enabled.
func (s Settings) UpdateKeysEnabled() bool {
	return s.UpdateKeys != "False"
}

// SettingsStore reads and writes a settings file, guarding concurrent access.
type SettingsStore struct {
	path string
	mu   sync.Mutex
}

func NewSettingsStore(path string) *SettingsStore {
	return &SettingsStore{path: path}
}

// Load reads settings from disk. A missing file yields zero settings.
func (st *SettingsStore) Load() (Settings, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	raw, err := os.ReadFile(st.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Settings{}, nil
		}
		return Settings{}, err
	}
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Save writes settings to disk, creating the file if needed.
func (st *SettingsStore) Save(s Settings) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(st.path, raw, 0o644)
}
