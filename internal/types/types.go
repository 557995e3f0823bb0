// Package types defines the configuration value types shared by the pdf-workbench service
// and its standalone utilities.
package types

// Config 应用配置
type Config struct {
	Server    ServerConfig    `toml:"server" json:"server"`
	Limits    LimitsConfig    `toml:"limits" json:"limits"`
	Render    RenderConfig    `toml:"render" json:"render"`
	Scanner   ScannerConfig   `toml:"scanner" json:"scanner"`
	Log       LogConfig       `toml:"log" json:"log"`
	Telemetry TelemetryConfig `toml:"telemetry" json:"telemetry"`
}

// ServerConfig HTTP 传输层配置
type ServerConfig struct {
	Addr               string   `toml:"addr" json:"addr"`
	AllowedOrigins     []string `toml:"allowed_origins" json:"allowed_origins"` // CORS 允许的来源
	ReadTimeoutSec     int      `toml:"read_timeout_sec" json:"read_timeout_sec"`
	WriteTimeoutSec    int      `toml:"write_timeout_sec" json:"write_timeout_sec"`
	ShutdownTimeoutSec int      `toml:"shutdown_timeout_sec" json:"shutdown_timeout_sec"`
}

// LimitsConfig 资源上限
type LimitsConfig struct {
	MaxUploadBytes  int64 `toml:"max_upload_bytes" json:"max_upload_bytes"`   // 单个文件大小上限（字节）
	MaxRenderPixels int64 `toml:"max_render_pixels" json:"max_render_pixels"` // 单次渲染像素上限
}

// RenderConfig 渲染参数
type RenderConfig struct {
	PreviewZoom  float64 `toml:"preview_zoom" json:"preview_zoom"`   // 预览缩放系数，1.0 = 72 dpi
	CompositeDPI float64 `toml:"composite_dpi" json:"composite_dpi"` // 叠加合成使用的分辨率
}

// ScannerConfig 敏感内容扫描配置
type ScannerConfig struct {
	SensitivePatterns []string `toml:"sensitive_patterns" json:"sensitive_patterns"`
}

// LogConfig 日志配置
type LogConfig struct {
	File       string `toml:"file" json:"file"`
	ErrorFile  string `toml:"error_file" json:"error_file"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups"`
	Level      string `toml:"level" json:"level"`
	Console    bool   `toml:"console" json:"console"`
}

// TelemetryConfig OpenTelemetry 导出配置，端点等由标准 OTEL_* 环境变量决定
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled" json:"enabled"`
	ServiceName string `toml:"service_name" json:"service_name"`
}

// ErrorCode 应用级错误码
type ErrorCode string

const (
	ErrConfig   ErrorCode = "CONFIG_ERROR"
	ErrStartup  ErrorCode = "STARTUP_ERROR"
	ErrShutdown ErrorCode = "SHUTDOWN_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}
