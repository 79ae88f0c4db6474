// Package config provides file-based configuration management for the agent service.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	Server       ServerConfig       `yaml:"server" toml:"server"`
	Storage      StorageConfig      `yaml:"storage" toml:"storage"`
	Dataset      DatasetConfig      `yaml:"dataset" toml:"dataset"`
	Assistant    AssistantConfig    `yaml:"assistant" toml:"assistant"`
	Conversation ConversationConfig `yaml:"conversation" toml:"conversation"`
	DuckDB       DuckDBConfig       `yaml:"duckdb" toml:"duckdb"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
	Security     SecurityConfig     `yaml:"security" toml:"security"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                 int    `yaml:"port" toml:"port"`
	BindAddress          string `yaml:"bind_address" toml:"bind_address"`
	EnableCORS           bool   `yaml:"enable_cors" toml:"enable_cors"`
	AllowOrigins         string `yaml:"allow_origins" toml:"allow_origins"`
	ReadTimeout          int    `yaml:"read_timeout_seconds" toml:"read_timeout_seconds"`
	WriteTimeout         int    `yaml:"write_timeout_seconds" toml:"write_timeout_seconds"`
	IdleTimeout          int    `yaml:"idle_timeout_seconds" toml:"idle_timeout_seconds"`
	RequestTimeout       int    `yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`
	BodyLimit            string `yaml:"body_limit" toml:"body_limit"`
	EnableRequestLogging bool   `yaml:"enable_request_logging" toml:"enable_request_logging"`
}

// StorageConfig contains dataset storage settings
type StorageConfig struct {
	DataDirectory    string `yaml:"data_directory" toml:"data_directory"`
	UploadsDirectory string `yaml:"uploads_directory" toml:"uploads_directory"`
}

// DatasetConfig controls how datasets are previewed and resolved
type DatasetConfig struct {
	PreviewRows      int    `yaml:"preview_rows" toml:"preview_rows"`
	Description      string `yaml:"description" toml:"description"`
	AllowedFileTypes string `yaml:"allowed_file_types" toml:"allowed_file_types"`
	RestrictPaths    bool   `yaml:"restrict_paths" toml:"restrict_paths"`
}

// AssistantConfig selects and tunes the analysis capability
type AssistantConfig struct {
	Provider          string   `yaml:"provider" toml:"provider"` // "openai" or "ollama"
	Model             string   `yaml:"model" toml:"model"`
	BaseURL           string   `yaml:"base_url" toml:"base_url"`
	APIKey            string   `yaml:"api_key" toml:"api_key"`
	TimeoutSeconds    int      `yaml:"timeout_seconds" toml:"timeout_seconds"`
	RunCode           bool     `yaml:"run_code" toml:"run_code"`
	SaveAndRun        bool     `yaml:"save_and_run" toml:"save_and_run"`
	ChartingLibraries []string `yaml:"charting_libraries" toml:"charting_libraries"`
	MaxToolRounds     int      `yaml:"max_tool_rounds" toml:"max_tool_rounds"`
	QueryRowLimit     int      `yaml:"query_row_limit" toml:"query_row_limit"`
}

// ConversationConfig contains two-turn protocol settings
type ConversationConfig struct {
	StrictStage bool `yaml:"strict_stage" toml:"strict_stage"`
}

// DuckDBConfig contains settings for the embedded query engine
type DuckDBConfig struct {
	Threads     int    `yaml:"threads" toml:"threads"`
	MemoryLimit string `yaml:"memory_limit" toml:"memory_limit"`
}

// LoggingConfig defines the logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // "text" or "json"
	Output string `yaml:"output" toml:"output"` // "stdout", "stderr" or a file path
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	AllowFileDeletion bool `yaml:"allow_file_deletion" toml:"allow_file_deletion"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                 8089,
			BindAddress:          "0.0.0.0",
			EnableCORS:           true,
			AllowOrigins:         "*",
			ReadTimeout:          30,
			WriteTimeout:         310,
			IdleTimeout:          120,
			RequestTimeout:       300,
			BodyLimit:            "256M",
			EnableRequestLogging: true,
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
		},
		Dataset: DatasetConfig{
			PreviewRows:      5,
			Description:      "Contains information about a portfolio of stocks",
			AllowedFileTypes: ".csv,.tsv,.txt,.parquet,.json,.ndjson,.jsonl",
			RestrictPaths:    false,
		},
		Assistant: AssistantConfig{
			Provider:          "openai",
			Model:             "gpt-4o",
			TimeoutSeconds:    300,
			RunCode:           true,
			SaveAndRun:        false,
			ChartingLibraries: []string{"plotly"},
			MaxToolRounds:     4,
			QueryRowLimit:     50,
		},
		DuckDB: DuckDBConfig{
			Threads:     4,
			MemoryLimit: "1GB",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Security: SecurityConfig{
			AllowFileDeletion: true,
		},
	}
}

// LoadConfig loads configuration from a YAML or TOML file. A missing file is
// created with default values.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(configPath, data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func decode(path string, data []byte, into *AppConfig) error {
	if isTOML(path) {
		_, err := toml.Decode(string(data), into)
		return err
	}
	return yaml.Unmarshal(data, into)
}

// Save saves the configuration to disk, in TOML if the path ends in .toml and YAML otherwise.
func (c *AppConfig) Save(configPath string) error {
	var buf bytes.Buffer
	buf.WriteString("# Manager data agent configuration\n# This file is auto-generated on first run\n\n")

	if isTOML(configPath) {
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		enc.Close()
	}

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate rejects configurations the service cannot run with
func (c *AppConfig) Validate() error {
	switch strings.ToLower(c.Assistant.Provider) {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unsupported assistant provider: %q", c.Assistant.Provider)
	}
	if c.Dataset.PreviewRows <= 0 {
		return fmt.Errorf("dataset.preview_rows must be positive, got %d", c.Dataset.PreviewRows)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
	}

	if provider := os.Getenv("ASSISTANT_PROVIDER"); provider != "" {
		c.Assistant.Provider = provider
	}
	if model := os.Getenv("ASSISTANT_MODEL"); model != "" {
		c.Assistant.Model = model
	}

	// The API key is normally only supplied through the environment
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.Assistant.APIKey == "" {
		c.Assistant.APIKey = key
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" && strings.EqualFold(c.Assistant.Provider, "ollama") {
		c.Assistant.BaseURL = host
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.UploadsDirectory) {
		c.Storage.UploadsDirectory = filepath.Join(configDir, c.Storage.UploadsDirectory)
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// AllowedExtensions returns the lower-cased upload extensions
func (c *AppConfig) AllowedExtensions() []string {
	var exts []string
	for _, ext := range strings.Split(c.Dataset.AllowedFileTypes, ",") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	return exts
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
