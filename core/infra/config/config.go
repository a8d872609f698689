package config

import "os"

const (
	defaultListenAddr    = ":8080"
	defaultRedisURL      = ""
	defaultOutputDir     = "output"
	defaultWorkDir       = "work"
	defaultKeyFile       = "keys.tsv"
	defaultPersonalKeys  = "personal_keys.tsv"
	defaultListFile      = "list.txt"
	defaultSettingsPath  = "settings.json"
	defaultRulesPath     = "config/content_rules.yaml"
	envListenAddr        = "MARKPE_LISTEN_ADDR"
	envRedisURL          = "MARKPE_REDIS_URL"
	envOutputDir         = "MARKPE_OUTPUT_DIR"
	envWorkDir           = "MARKPE_WORK_DIR"
	envKeyFile           = "MARKPE_KEY_FILE"
	envPersonalKeys      = "MARKPE_PERSONAL_KEY_FILE"
	envListFile          = "MARKPE_LIST_FILE"
	envSettingsPath      = "MARKPE_SETTINGS_PATH"
	envRulesPath         = "MARKPE_RULES_PATH"
	envAPIKeys           = "MARKPE_API_KEYS"
	envPlayFabTitle      = "MARKPE_PLAYFAB_TITLE"
	defaultPlayFabTitle  = "20CA2"
)

// Config holds runtime configuration for the gateway and CLI.
type Config struct {
	ListenAddr      string
	RedisURL        string
	OutputDir       string
	WorkDir         string
	KeyFilePath     string
	PersonalKeyPath string
	ListFilePath    string
	SettingsPath    string
	RulesPath       string
	APIKeys         string
	PlayFabTitle    string
}

// Load returns configuration using environment variables with sane defaults.
func Load() *Config {
	return &Config{
		ListenAddr:      envOr(envListenAddr, defaultListenAddr),
		RedisURL:        envOr(envRedisURL, defaultRedisURL),
		OutputDir:       envOr(envOutputDir, defaultOutputDir),
		WorkDir:         envOr(envWorkDir, defaultWorkDir),
		KeyFilePath:     envOr(envKeyFile, defaultKeyFile),
		PersonalKeyPath: envOr(envPersonalKeys, defaultPersonalKeys),
		ListFilePath:    envOr(envListFile, defaultListFile),
		SettingsPath:    envOr(envSettingsPath, defaultSettingsPath),
		RulesPath:       envOr(envRulesPath, defaultRulesPath),
		APIKeys:         os.Getenv(envAPIKeys),
		PlayFabTitle:    envOr(envPlayFabTitle, defaultPlayFabTitle),
	}
}

func envOr(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
