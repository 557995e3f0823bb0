// Package config provides configuration management for the pdf-workbench service.
// The configuration is read once at start-up and handed to the rest of the
// process as an immutable value.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"pdf-workbench/internal/logger"
	"pdf-workbench/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "pdf-workbench.toml"

	// EnvAddr overrides server.addr
	EnvAddr = "PDFWB_ADDR"
	// EnvMaxUploadBytes overrides limits.max_upload_bytes
	EnvMaxUploadBytes = "PDFWB_MAX_UPLOAD_BYTES"
	// EnvSensitivePatterns overrides scanner.sensitive_patterns (comma separated)
	EnvSensitivePatterns = "PDFWB_SENSITIVE_PATTERNS"
	// EnvLogFile overrides log.file
	EnvLogFile = "PDFWB_LOG_FILE"

	DefaultAddr            = ":8000"
	DefaultAllowedOrigin   = "http://localhost:3001"
	DefaultMaxUploadBytes  = 10 * 1024 * 1024
	DefaultMaxRenderPixels = 40_000_000
	DefaultPreviewZoom     = 1.0
	DefaultCompositeDPI    = 300.0
	DefaultLogFile         = "logs/pdf_service.log"
	DefaultErrorLogFile    = "logs/pdf_service_error.log"
	DefaultLogMaxSizeMB    = 10
	DefaultLogMaxBackups   = 10
	DefaultServiceName     = "pdf-workbench"
)

// ConfigManager manages application configuration
type ConfigManager struct {
	configPath string
	config     *types.Config
}

// NewConfigManager creates a new ConfigManager with the specified config path.
// If configPath is empty, it uses the default path in user's config directory.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			logger.Error("failed to get user config directory", err)
			return nil, types.NewAppError(types.ErrConfig, "failed to get user config directory", err)
		}
		configPath = filepath.Join(dir, "pdf-workbench", DefaultConfigFileName)
	}

	logger.Info("ConfigManager initialized", logger.String("configPath", configPath))
	return &ConfigManager{
		configPath: configPath,
		config:     Default(),
	}, nil
}

// Default returns a Config populated with default values
func Default() *types.Config {
	return &types.Config{
		Server: types.ServerConfig{
			Addr:               DefaultAddr,
			AllowedOrigins:     []string{DefaultAllowedOrigin},
			ReadTimeoutSec:     30,
			WriteTimeoutSec:    120,
			ShutdownTimeoutSec: 10,
		},
		Limits: types.LimitsConfig{
			MaxUploadBytes:  DefaultMaxUploadBytes,
			MaxRenderPixels: DefaultMaxRenderPixels,
		},
		Render: types.RenderConfig{
			PreviewZoom:  DefaultPreviewZoom,
			CompositeDPI: DefaultCompositeDPI,
		},
		Scanner: types.ScannerConfig{
			SensitivePatterns: []string{},
		},
		Log: types.LogConfig{
			File:       DefaultLogFile,
			ErrorFile:  DefaultErrorLogFile,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			Level:      "info",
		},
		Telemetry: types.TelemetryConfig{
			Enabled:     false,
			ServiceName: DefaultServiceName,
		},
	}
}

// Load loads configuration from the config file.
// A missing file yields defaults; an unparsable file is reported and defaults are used.
// Environment overrides are applied last.
func (m *ConfigManager) Load() error {
	logger.Debug("loading configuration", logger.String("path", m.configPath))

	data, err := os.ReadFile(m.configPath)
	switch {
	case os.IsNotExist(err):
		logger.Info("config file not found, using defaults", logger.String("path", m.configPath))
		m.config = Default()
	case err != nil:
		logger.Error("failed to read config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to read config file", err)
	default:
		// decode on top of the defaults so omitted keys keep their default value
		cfg := Default()
		if _, err := toml.Decode(string(data), cfg); err != nil {
			logger.Warn("invalid config file format, using defaults", logger.String("path", m.configPath), logger.Err(err))
			m.config = Default()
		} else {
			logger.Info("configuration loaded successfully",
				logger.String("path", m.configPath),
				logger.String("addr", cfg.Server.Addr),
				logger.Int64("maxUploadBytes", cfg.Limits.MaxUploadBytes),
				logger.Int("sensitivePatterns", len(cfg.Scanner.SensitivePatterns)))
			m.config = cfg
		}
	}

	applyEnv(m.config)
	fillDefaults(m.config)
	return nil
}

// applyEnv applies PDFWB_* environment overrides
func applyEnv(cfg *types.Config) {
	if v := os.Getenv(EnvAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv(EnvMaxUploadBytes); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			logger.Warn("ignoring invalid upload limit override", logger.String("env", EnvMaxUploadBytes), logger.String("value", v))
		} else {
			cfg.Limits.MaxUploadBytes = n
		}
	}
	if v, ok := os.LookupEnv(EnvSensitivePatterns); ok {
		cfg.Scanner.SensitivePatterns = SplitList(v)
	}
	if v := os.Getenv(EnvLogFile); v != "" {
		cfg.Log.File = v
	}
}

// fillDefaults replaces zero or invalid values with their defaults
func fillDefaults(cfg *types.Config) {
	d := Default()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = d.Server.Addr
	}
	if cfg.Server.ReadTimeoutSec <= 0 {
		cfg.Server.ReadTimeoutSec = d.Server.ReadTimeoutSec
	}
	if cfg.Server.WriteTimeoutSec <= 0 {
		cfg.Server.WriteTimeoutSec = d.Server.WriteTimeoutSec
	}
	if cfg.Server.ShutdownTimeoutSec <= 0 {
		cfg.Server.ShutdownTimeoutSec = d.Server.ShutdownTimeoutSec
	}
	if cfg.Limits.MaxUploadBytes <= 0 {
		cfg.Limits.MaxUploadBytes = d.Limits.MaxUploadBytes
	}
	if cfg.Limits.MaxRenderPixels <= 0 {
		cfg.Limits.MaxRenderPixels = d.Limits.MaxRenderPixels
	}
	if cfg.Render.PreviewZoom <= 0 {
		cfg.Render.PreviewZoom = d.Render.PreviewZoom
	}
	if cfg.Render.CompositeDPI <= 0 {
		cfg.Render.CompositeDPI = d.Render.CompositeDPI
	}
	if cfg.Log.File == "" {
		cfg.Log.File = d.Log.File
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = d.Log.MaxSizeMB
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = d.Log.MaxBackups
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = d.Telemetry.ServiceName
	}
}

// SplitList splits a comma separated list, trimming blanks and dropping empty items
func SplitList(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Save saves the current configuration to the config file.
func (m *ConfigManager) Save() error {
	logger.Debug("saving configuration", logger.String("path", m.configPath))

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewAppError(types.ErrConfig, "failed to create config directory", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m.GetConfig()); err != nil {
		logger.Error("failed to marshal config", err)
		return types.NewAppError(types.ErrConfig, "failed to marshal config", err)
	}

	if err := os.WriteFile(m.configPath, buf.Bytes(), 0644); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved successfully", logger.String("path", m.configPath))
	return nil
}

// GetConfig returns the current configuration.
func (m *ConfigManager) GetConfig() *types.Config {
	if m.config == nil {
		return Default()
	}
	return m.config
}

// SetConfig sets the entire configuration.
func (m *ConfigManager) SetConfig(config *types.Config) {
	m.config = config
}

// GetConfigPath returns the path to the config file.
func (m *ConfigManager) GetConfigPath() string {
	return m.configPath
}

// GetMaxUploadBytes returns the per-file upload ceiling.
func (m *ConfigManager) GetMaxUploadBytes() int64 {
	if m.config != nil && m.config.Limits.MaxUploadBytes > 0 {
		return m.config.Limits.MaxUploadBytes
	}
	return DefaultMaxUploadBytes
}

// GetSensitivePatterns returns a copy of the configured scan patterns.
func (m *ConfigManager) GetSensitivePatterns() []string {
	if m.config == nil {
		return nil
	}
	return append([]string(nil), m.config.Scanner.SensitivePatterns...)
}

// GetCompositeZoom converts the configured compositing DPI to a zoom factor.
func (m *ConfigManager) GetCompositeZoom() float64 {
	dpi := DefaultCompositeDPI
	if m.config != nil && m.config.Render.CompositeDPI > 0 {
		dpi = m.config.Render.CompositeDPI
	}
	return dpi / 72
}

// LoggerConfig converts the log section into a logger.Config.
func (m *ConfigManager) LoggerConfig() *logger.Config {
	c := m.GetConfig().Log
	return &logger.Config{
		LogFilePath:      c.File,
		ErrorLogFilePath: c.ErrorFile,
		MaxFileSize:      int64(c.MaxSizeMB) * 1024 * 1024,
		MaxBackups:       c.MaxBackups,
		Level:            logger.ParseLevel(c.Level),
		EnableConsole:    c.Console,
	}
}
