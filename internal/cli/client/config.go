package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloo-solutions/coursetutor/internal/domain"
)

const (
	envAPIKey = "TUTOR_API_KEY"
	envAPIURL = "TUTOR_API_URL"

	defaultAPIURL = "http://localhost:8080"
)

// GlobalConfig is the credential file written by "tutor auth login".
type GlobalConfig struct {
	APIKey   string `json:"api_key"`
	APIURL   string `json:"api_url"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

var (
	getConfigDirFunc  = defaultGetConfigDir
	getConfigPathFunc = defaultGetConfigPath
)

func defaultGetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "coursetutor"), nil
}

func defaultGetConfigPath() (string, error) {
	configDir, err := getConfigDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// LoadGlobalConfig returns nil, nil when no credential file exists.
func LoadGlobalConfig() (*GlobalConfig, error) {
	configPath, err := getConfigPathFunc()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg GlobalConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// SaveGlobalConfig writes the credential file readable by the owner only.
func SaveGlobalConfig(cfg *GlobalConfig) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}

	configDir, err := getConfigDirFunc()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath, err := getConfigPathFunc()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func DeleteGlobalConfig() error {
	configPath, err := getConfigPathFunc()
	if err != nil {
		return err
	}
	if err := os.Remove(configPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete config file: %w", err)
	}
	return nil
}

// IsValidAPIKey checks the ctu_ + 64 hex chars token shape.
func IsValidAPIKey(key string) bool {
	return domain.IsAPITokenFormat(key)
}

// CredentialSource says where the active credentials came from.
type CredentialSource string

const (
	SourceFlag         CredentialSource = "flag"
	SourceEnv          CredentialSource = "env"
	SourceGlobalConfig CredentialSource = "global_config"
	SourceNone         CredentialSource = "none"
)

// Credentials are resolved key by key: flag, then env, then the credential
// file. The URL falls back to the default.
type Credentials struct {
	APIKey string
	APIURL string
	Source CredentialSource
}

func ResolveCredentials(flagAPIKey, flagAPIURL string) (Credentials, error) {
	creds := Credentials{APIKey: flagAPIKey, APIURL: flagAPIURL, Source: SourceNone}
	if creds.APIKey != "" {
		creds.Source = SourceFlag
	}

	if creds.APIKey == "" {
		if v := os.Getenv(envAPIKey); v != "" {
			creds.APIKey, creds.Source = v, SourceEnv
		}
	}
	if creds.APIURL == "" {
		creds.APIURL = os.Getenv(envAPIURL)
	}

	if creds.APIKey == "" || creds.APIURL == "" {
		global, err := LoadGlobalConfig()
		if err != nil {
			return creds, err
		}
		if global != nil {
			if creds.APIKey == "" && global.APIKey != "" {
				creds.APIKey, creds.Source = global.APIKey, SourceGlobalConfig
			}
			if creds.APIURL == "" {
				creds.APIURL = global.APIURL
			}
		}
	}

	if creds.APIURL == "" {
		creds.APIURL = defaultAPIURL
	}
	creds.APIURL = strings.TrimRight(creds.APIURL, "/")
	return creds, nil
}
