package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Config holds application configuration.
type Config struct {
	// Model is the completion model identifier sent to the generative API.
	Model string `json:"model,omitempty"`

	// APIBaseURL is the base URL of the generative API.
	APIBaseURL string `json:"api_base_url,omitempty"`

	// APIKeyEnv names the environment variable holding the API credential.
	APIKeyEnv string `json:"api_key_env,omitempty"`

	// MemoryTurnLimit caps how many cross-chat turns the prompt composer
	// includes as project memory.
	MemoryTurnLimit int `json:"memory_turn_limit,omitempty"`

	// MemoryTurnChars caps the rendered length (runes) of each project-memory turn.
	MemoryTurnChars int `json:"memory_turn_chars,omitempty"`

	// AttachmentMaxBytes caps the decoded size of a single message attachment.
	AttachmentMaxBytes int `json:"attachment_max_bytes,omitempty"`

	// SeedSample seeds an example project and chat into an empty workspace.
	SeedSample bool `json:"seed_sample,omitempty"`

	// AllowedPaths is an allowlist of directories for transcript export.
	// Paths outside baseDir/exports require either being in this list or
	// AllowUnsafePaths=true. Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for transcript export.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// All tools are enabled by default. Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of MCP tool type prefixes (e.g. "project") whose
	// tools are all excluded from registration.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Model:              "gemini-2.5-flash",
		APIBaseURL:         "https://generativelanguage.googleapis.com/v1beta",
		APIKeyEnv:          "LOFT_API_KEY",
		MemoryTurnLimit:    10,
		MemoryTurnChars:    250,
		AttachmentMaxBytes: 10 << 20,
	}
}

// APIKey resolves the API credential from the configured environment variable.
// Returns an empty string when unset.
func (c *Config) APIKey() string {
	return strings.TrimSpace(os.Getenv(c.APIKeyEnv))
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.loft.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// File doesn't exist, return zero config
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.Model = overlay.Model
	if result.Model == "" {
		result.Model = base.Model
	}

	result.APIBaseURL = overlay.APIBaseURL
	if result.APIBaseURL == "" {
		result.APIBaseURL = base.APIBaseURL
	}

	result.APIKeyEnv = overlay.APIKeyEnv
	if result.APIKeyEnv == "" {
		result.APIKeyEnv = base.APIKeyEnv
	}

	result.MemoryTurnLimit = overlay.MemoryTurnLimit
	if result.MemoryTurnLimit == 0 {
		result.MemoryTurnLimit = base.MemoryTurnLimit
	}

	result.MemoryTurnChars = overlay.MemoryTurnChars
	if result.MemoryTurnChars == 0 {
		result.MemoryTurnChars = base.MemoryTurnChars
	}

	result.AttachmentMaxBytes = overlay.AttachmentMaxBytes
	if result.AttachmentMaxBytes == 0 {
		result.AttachmentMaxBytes = base.AttachmentMaxBytes
	}

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}

	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	// Booleans: overlay wins if true, else base
	result.SeedSample = base.SeedSample || overlay.SeedSample
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
