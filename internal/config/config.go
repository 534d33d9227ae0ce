package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	LiveKit LiveKitConfig
	Storage StorageConfig
	Call    CallConfig
	Metrics MetricsConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	liveKit, err := loadLiveKitConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	call, err := loadCallConfig()
	if err != nil {
		return nil, err
	}

	metrics, err := loadMetricsConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		LiveKit: liveKit,
		Storage: storage,
		Call:    call,
		Metrics: metrics,
		Log:     loadLogConfig(),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LiveKitConfig 描述实时音频平台的签发凭证。
// 缺失的字段不会导致启动失败，由签发接口在请求时报告。
type LiveKitConfig struct {
	URL       string
	APIKey    string
	APISecret string
	TokenTTL  time.Duration
}

func loadLiveKitConfig() (LiveKitConfig, error) {
	ttl, err := parseDurationEnv("LIVEKIT_TOKEN_TTL", 15*time.Minute)
	if err != nil {
		return LiveKitConfig{}, err
	}

	return LiveKitConfig{
		URL:       strings.TrimSpace(os.Getenv("LIVEKIT_URL")),
		APIKey:    strings.TrimSpace(os.Getenv("LIVEKIT_API_KEY")),
		APISecret: strings.TrimSpace(os.Getenv("LIVEKIT_API_SECRET")),
		TokenTTL:  ttl,
	}, nil
}

// Storage drivers accepted by FEEDBACK_STORE.
const (
	DriverPostgREST = "postgrest"
	DriverPostgres  = "postgres"
	DriverSQLite    = "sqlite"
	DriverMemory    = "memory"
)

// StorageConfig 描述反馈存储。
type StorageConfig struct {
	Driver      string
	SupabaseURL string
	SupabaseKey string
	Table       string
	DatabaseURL string
	SQLitePath  string
	Timeout     time.Duration
	Agent       string
}

// PostgRESTReady 表示 PostgREST 所需的地址与密钥是否齐全。
func (c StorageConfig) PostgRESTReady() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}

func loadStorageConfig() (StorageConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("FEEDBACK_STORE", DriverPostgREST))
	switch driver {
	case DriverPostgREST, DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return StorageConfig{}, fmt.Errorf("invalid FEEDBACK_STORE value: %q", driver)
	}

	timeout, err := parseDurationEnv("STORAGE_TIMEOUT", 10*time.Second)
	if err != nil {
		return StorageConfig{}, err
	}

	return StorageConfig{
		Driver:      driver,
		SupabaseURL: firstEnv("SUPABASE_URL", "NEXT_PUBLIC_SUPABASE_URL"),
		SupabaseKey: firstEnv("SUPABASE_KEY", "NEXT_PUBLIC_SUPABASE_KEY"),
		Table:       getEnvOrDefault("FEEDBACK_TABLE", "feedback"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:  getEnvOrDefault("SQLITE_PATH", "feedback.db"),
		Timeout:     timeout,
		Agent:       getEnvOrDefault("FEEDBACK_AGENT", "tara"),
	}, nil
}

// CallConfig 描述通话会话的计时参数。
type CallConfig struct {
	MaxDuration       time.Duration
	ConfirmationDelay time.Duration
	FailureResetDelay time.Duration
	JoinTimeout       time.Duration
}

// callCeiling 是单次通话的硬上限，CALL_MAX_DURATION 只能调低。
const callCeiling = 5 * time.Minute

func loadCallConfig() (CallConfig, error) {
	maxDuration, err := parseDurationEnv("CALL_MAX_DURATION", callCeiling)
	if err != nil {
		return CallConfig{}, err
	}
	confirm, err := parseDurationEnv("CALL_CONFIRMATION_DELAY", 3*time.Second)
	if err != nil {
		return CallConfig{}, err
	}
	failure, err := parseDurationEnv("CALL_FAILURE_RESET_DELAY", 6*time.Second)
	if err != nil {
		return CallConfig{}, err
	}
	join, err := parseDurationEnv("CALL_JOIN_TIMEOUT", 20*time.Second)
	if err != nil {
		return CallConfig{}, err
	}

	if maxDuration > callCeiling {
		return CallConfig{}, fmt.Errorf("CALL_MAX_DURATION (%s) must not exceed %s", maxDuration, callCeiling)
	}
	if failure < confirm {
		return CallConfig{}, fmt.Errorf("CALL_FAILURE_RESET_DELAY (%s) must not be shorter than CALL_CONFIRMATION_DELAY (%s)", failure, confirm)
	}

	return CallConfig{
		MaxDuration:       maxDuration,
		ConfirmationDelay: confirm,
		FailureResetDelay: failure,
		JoinTimeout:       join,
	}, nil
}

// MetricsConfig 描述 OTLP 指标导出。
type MetricsConfig struct {
	Enabled  bool
	Endpoint string
	Insecure bool
}

func loadMetricsConfig() (MetricsConfig, error) {
	enabled, err := parseBoolEnv("OTEL_METRICS_ENABLED", false)
	if err != nil {
		return MetricsConfig{}, err
	}
	insecure, err := parseBoolEnv("OTEL_EXPORTER_OTLP_INSECURE", false)
	if err != nil {
		return MetricsConfig{}, err
	}

	return MetricsConfig{
		Enabled:  enabled,
		Endpoint: strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		Insecure: insecure,
	}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseDurationEnv 接受 Go duration 字符串，纯数字按秒处理。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
		}
		return time.Duration(seconds) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}
