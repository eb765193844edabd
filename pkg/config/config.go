/*
Package config manages TOML config for pwmodel builds and queries.
*/
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/rchatterjee/pwmodels/internal/utils"
)

// Config holds the entire config structure
type Config struct {
	Corpus   CorpusConfig   `toml:"corpus"`
	Model    ModelConfig    `toml:"model"`
	Generate GenerateConfig `toml:"generate"`
	Sample   SampleConfig   `toml:"sample"`
	Server   ServerConfig   `toml:"server"`
}

// CorpusConfig controls how leak files are read.
type CorpusConfig struct {
	DataDir   string `toml:"data_dir"`
	Separator string `toml:"separator"`
	Limit     int    `toml:"limit"`
}

// ModelConfig holds n-gram training options.
type ModelConfig struct {
	Order     int `toml:"order"`
	MinLength int `toml:"min_length"`
	TopK      int `toml:"top_k"`
	CacheSize int `toml:"cache_size"`
	Shards    int `toml:"shards"`
}

// GenerateConfig holds best-first generation options.
type GenerateConfig struct {
	Limit           int     `toml:"limit"`
	MaxFrontier     int     `toml:"max_frontier"`
	Epsilon         float64 `toml:"epsilon"`
	MinLen          int     `toml:"min_len"`
	MaxLen          int     `toml:"max_len"`
	AllowNumeric    bool    `toml:"allow_numeric"`
	AllowRepetitive bool    `toml:"allow_repetitive"`
}

// SampleConfig holds sampling options. A zero seed draws a random one.
type SampleConfig struct {
	Seed   uint64 `toml:"seed"`
	Unique bool  `toml:"unique"`
}

// ServerConfig caps what a single IPC request may ask for.
type ServerConfig struct {
	MaxGenerate int `toml:"max_generate"`
	MaxSample   int `toml:"max_sample"`
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/pwmodel
// 2. the data dir ($PWMODEL_HOME or ~/.pwmodel)
// 3. Current executable dir
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err == nil {
		primaryPath := filepath.Join(homeDir, ".config", "pwmodel")
		if utils.WritableDir(primaryPath) {
			return primaryPath, nil
		}
	} else {
		log.Errorf("Failed to get home directory: %v", err)
	}
	if dataDir, err := utils.DataDir(); err == nil {
		if utils.WritableDir(dataDir) {
			return dataDir, nil
		}
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [ConfigDir]/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err != nil {
				log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
			} else {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Corpus: CorpusConfig{
			DataDir:   "",
			Separator: "",
			Limit:     0,
		},
		Model: ModelConfig{
			Order:     3,
			MinLength: 6,
			TopK:      0,
			CacheSize: 100000,
			Shards:    1,
		},
		Generate: GenerateConfig{
			Limit:           1000,
			MaxFrontier:     1000000,
			Epsilon:         1e-9,
			MinLen:          0,
			MaxLen:          0,
			AllowNumeric:    true,
			AllowRepetitive: true,
		},
		Sample: SampleConfig{
			Seed:   0,
			Unique: false,
		},
		Server: ServerConfig{
			MaxGenerate: 100000,
			MaxSample:   1000000,
		},
	}
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if c.Model.Order < 1 {
		return fmt.Errorf("model.order must be at least 1, got %d", c.Model.Order)
	}
	if c.Model.Shards < 1 {
		return fmt.Errorf("model.shards must be at least 1, got %d", c.Model.Shards)
	}
	if c.Generate.Epsilon < 0 {
		return fmt.Errorf("generate.epsilon must not be negative, got %v", c.Generate.Epsilon)
	}
	return nil
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config from %s: %v. Using built-in defaults...", configPath, err)
		return DefaultConfig(), nil
	}
	return config, nil
}

// LoadConfig loads from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return tryPartialParse(configPath)
	}
	return config, nil
}

// tryPartialParse keeps every well-typed key of a config that failed strict
// decoding.
func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	tempConfig, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if section, ok := utils.ExtractSection(tempConfig, "corpus"); ok {
		extractCorpusConfig(section, &config.Corpus)
	}
	if section, ok := utils.ExtractSection(tempConfig, "model"); ok {
		extractModelConfig(section, &config.Model)
	}
	if section, ok := utils.ExtractSection(tempConfig, "generate"); ok {
		extractGenerateConfig(section, &config.Generate)
	}
	if section, ok := utils.ExtractSection(tempConfig, "sample"); ok {
		extractSampleConfig(section, &config.Sample)
	}
	if section, ok := utils.ExtractSection(tempConfig, "server"); ok {
		extractServerConfig(section, &config.Server)
	}
	return config, nil
}

func extractCorpusConfig(data map[string]any, corpus *CorpusConfig) {
	if val, ok := utils.ExtractString(data, "data_dir"); ok {
		corpus.DataDir = val
	}
	if val, ok := utils.ExtractString(data, "separator"); ok {
		corpus.Separator = val
	}
	if val, ok := utils.ExtractInt64(data, "limit"); ok {
		corpus.Limit = val
	}
}

func extractModelConfig(data map[string]any, model *ModelConfig) {
	if val, ok := utils.ExtractInt64(data, "order"); ok {
		model.Order = val
	}
	if val, ok := utils.ExtractInt64(data, "min_length"); ok {
		model.MinLength = val
	}
	if val, ok := utils.ExtractInt64(data, "top_k"); ok {
		model.TopK = val
	}
	if val, ok := utils.ExtractInt64(data, "cache_size"); ok {
		model.CacheSize = val
	}
	if val, ok := utils.ExtractInt64(data, "shards"); ok {
		model.Shards = val
	}
}

func extractGenerateConfig(data map[string]any, gen *GenerateConfig) {
	if val, ok := utils.ExtractInt64(data, "limit"); ok {
		gen.Limit = val
	}
	if val, ok := utils.ExtractInt64(data, "max_frontier"); ok {
		gen.MaxFrontier = val
	}
	if val, ok := utils.ExtractFloat(data, "epsilon"); ok {
		gen.Epsilon = val
	}
	if val, ok := utils.ExtractInt64(data, "min_len"); ok {
		gen.MinLen = val
	}
	if val, ok := utils.ExtractInt64(data, "max_len"); ok {
		gen.MaxLen = val
	}
	if val, ok := utils.ExtractBool(data, "allow_numeric"); ok {
		gen.AllowNumeric = val
	}
	if val, ok := utils.ExtractBool(data, "allow_repetitive"); ok {
		gen.AllowRepetitive = val
	}
}

func extractSampleConfig(data map[string]any, sample *SampleConfig) {
	if val, ok := utils.ExtractUint64(data, "seed"); ok {
		sample.Seed = val
	}
	if val, ok := utils.ExtractBool(data, "unique"); ok {
		sample.Unique = val
	}
}

func extractServerConfig(data map[string]any, server *ServerConfig) {
	if val, ok := utils.ExtractInt64(data, "max_generate"); ok {
		server.MaxGenerate = val
	}
	if val, ok := utils.ExtractInt64(data, "max_sample"); ok {
		server.MaxSample = val
	}
}

// RebuildConfigFile force creates a new config.toml at default
func RebuildConfigFile() error {
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		return err
	}
	return utils.WriteTOMLFile(defaultPath, DefaultConfig())
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		if defaultPath, err := GetDefaultConfigPath(); err == nil {
			return defaultPath
		}
		return "unknown"
	}
	return utils.AbsPath(configPath)
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.WriteTOMLFile(configPath, config)
}

// Encode writes config as TOML to w.
func Encode(w io.Writer, config *Config) error {
	return toml.NewEncoder(w).Encode(config)
}
