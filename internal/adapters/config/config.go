// Package config loads the manager configuration from
// ~/.codex-manager/config.toml, writing a default file on first run so every
// tunable is discoverable on disk. Environment variables with the CAM_ prefix
// override file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	managerDirName  = ".codex-manager"
	configFileName  = "config.toml"
	configFileMode  = 0o600
	managerDirMode  = 0o700
	envPrefix       = "CAM"
	codexDirName    = ".codex"
	codexAuthFile   = "auth.json"
	accountsFile    = "accounts.json"
	stateFile       = "state.json"
	defaultIssuer   = "https://auth.openai.com"
	defaultClientID = "app_EMoamEEZ73f0CkXaXp7hrann"
	defaultListen   = "127.0.0.1:1455"
	defaultUsageURL = "https://chatgpt.com/backend-api"
)

type Config struct {
	Auth    AuthConfig    `toml:"auth"`
	Usage   UsageConfig   `toml:"usage"`
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`
}

type AuthConfig struct {
	Issuer             string `toml:"issuer"`
	ClientID           string `toml:"client_id"`
	ListenAddr         string `toml:"listen_addr"`
	ListenerTimeoutSec int    `toml:"listener_timeout_sec"`
}

type UsageConfig struct {
	BaseURL string `toml:"base_url"`
}

type StorageConfig struct {
	AccountsPath   string `toml:"accounts_path"`
	StatePath      string `toml:"state_path"`
	CredentialPath string `toml:"credential_path"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

func (c AuthConfig) ListenerTimeout() time.Duration {
	return time.Duration(c.ListenerTimeoutSec) * time.Second
}

// Load reads the config file, creating it with defaults when absent.
func Load() (Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w", err)
	}

	return LoadFrom(filepath.Join(homeDir, managerDirName), homeDir)
}

// LoadFrom reads the config from the given manager directory. homeDir anchors
// the default credential path.
func LoadFrom(managerDir, homeDir string) (Config, error) {
	defaults := defaultConfig(managerDir, homeDir)

	v := viper.New()
	v.SetConfigName(strings.TrimSuffix(configFileName, filepath.Ext(configFileName)))
	v.SetConfigType("toml")
	v.AddConfigPath(managerDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("auth.issuer", defaults.Auth.Issuer)
	v.SetDefault("auth.client_id", defaults.Auth.ClientID)
	v.SetDefault("auth.listen_addr", defaults.Auth.ListenAddr)
	v.SetDefault("auth.listener_timeout_sec", defaults.Auth.ListenerTimeoutSec)
	v.SetDefault("usage.base_url", defaults.Usage.BaseURL)
	v.SetDefault("storage.accounts_path", defaults.Storage.AccountsPath)
	v.SetDefault("storage.state_path", defaults.Storage.StatePath)
	v.SetDefault("storage.credential_path", defaults.Storage.CredentialPath)
	v.SetDefault("log.level", defaults.Log.Level)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if writeErr := writeDefaultFile(managerDir, defaults); writeErr != nil {
			return Config{}, writeErr
		}
	}

	cfg := Config{
		Auth: AuthConfig{
			Issuer:             v.GetString("auth.issuer"),
			ClientID:           v.GetString("auth.client_id"),
			ListenAddr:         v.GetString("auth.listen_addr"),
			ListenerTimeoutSec: v.GetInt("auth.listener_timeout_sec"),
		},
		Usage: UsageConfig{
			BaseURL: v.GetString("usage.base_url"),
		},
		Storage: StorageConfig{
			AccountsPath:   v.GetString("storage.accounts_path"),
			StatePath:      v.GetString("storage.state_path"),
			CredentialPath: v.GetString("storage.credential_path"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.Auth.Issuer == "" {
		return errors.New("auth.issuer is empty")
	}
	if c.Auth.ClientID == "" {
		return errors.New("auth.client_id is empty")
	}
	if c.Auth.ListenAddr == "" {
		return errors.New("auth.listen_addr is empty")
	}
	if c.Auth.ListenerTimeoutSec <= 0 {
		return errors.New("auth.listener_timeout_sec must be positive")
	}
	if c.Usage.BaseURL == "" {
		return errors.New("usage.base_url is empty")
	}
	if c.Storage.AccountsPath == "" || c.Storage.StatePath == "" || c.Storage.CredentialPath == "" {
		return errors.New("storage paths must not be empty")
	}
	return nil
}

func defaultConfig(managerDir, homeDir string) Config {
	credentialPath := filepath.Join(homeDir, codexDirName, codexAuthFile)
	if codexHome := os.Getenv("CODEX_HOME"); codexHome != "" {
		credentialPath = filepath.Join(codexHome, codexAuthFile)
	}

	return Config{
		Auth: AuthConfig{
			Issuer:             defaultIssuer,
			ClientID:           defaultClientID,
			ListenAddr:         defaultListen,
			ListenerTimeoutSec: 180,
		},
		Usage: UsageConfig{
			BaseURL: defaultUsageURL,
		},
		Storage: StorageConfig{
			AccountsPath:   filepath.Join(managerDir, accountsFile),
			StatePath:      filepath.Join(managerDir, stateFile),
			CredentialPath: credentialPath,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func writeDefaultFile(managerDir string, cfg Config) error {
	if err := os.MkdirAll(managerDir, managerDirMode); err != nil {
		return fmt.Errorf("create manager directory: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}

	path := filepath.Join(managerDir, configFileName)
	if err := os.WriteFile(path, data, configFileMode); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	return nil
}
