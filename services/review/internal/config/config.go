package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"shotreview/internal/usertoken"
)

// ConfigPath is the default config location.
const ConfigPath = "config.yaml"

const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheSQLite = "sqlite"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
	// PublicBaseURL prefixes image URLs served by the in-memory image store.
	PublicBaseURL string `yaml:"publicBaseURL"`

	MinioEndpoint      string `yaml:"minioEndpoint"`
	MinioAccessKey     string `yaml:"minioAccessKey"`
	MinioSecretKey     string `yaml:"minioSecretKey"`
	MinioBucket        string `yaml:"minioBucket"`
	MinioUseSSL        bool   `yaml:"minioUseSSL"`
	MinioPublicBaseURL string `yaml:"minioPublicBaseURL"`
	MinioPublicRead    bool   `yaml:"minioPublicRead"`

	CacheBackend  string `yaml:"cacheBackend"`
	CachePath     string `yaml:"cachePath"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	DatabaseURL string `yaml:"databaseURL"`

	AMQPURL      string `yaml:"amqpURL"`
	AMQPExchange string `yaml:"amqpExchange"`
	EventStream  string `yaml:"eventStream"`

	BrowserEnabled    bool   `yaml:"browserEnabled"`
	BrowserControlURL string `yaml:"browserControlURL"`
	BrowserBin        string `yaml:"browserBin"`

	Users             []usertoken.StaticUser `yaml:"users"`
	ReviewTokenSecret string                 `yaml:"reviewTokenSecret"`
	JWTIssuer         string                 `yaml:"jwtIssuer"`
	JWTAudience       string                 `yaml:"jwtAudience"`
	JWTLeeway         string                 `yaml:"jwtLeeway"`

	TrustedProxyCIDRs         []string `yaml:"trustedProxyCidrs"`
	CaptureRateLimitPerMinute int      `yaml:"captureRateLimitPerMinute"`
	UploadRateLimitPerMinute  int      `yaml:"uploadRateLimitPerMinute"`
	MaxUploadBytes            int64    `yaml:"maxUploadBytes"`
	MaxSurfaceSize            int      `yaml:"maxSurfaceSize"`
	DOMAllowHosts             []string `yaml:"domAllowHosts"`
	DOMAllowPrivate           bool     `yaml:"domAllowPrivate"`

	RemoteTimeout    string `yaml:"remoteTimeout"`
	CaptureTimeout   string `yaml:"captureTimeout"`
	ClearConcurrency int    `yaml:"clearConcurrency"`
}

// ResolvePath picks the config file: explicit flag, then REVIEW_CONFIG, then ConfigPath.
func ResolvePath(flag string) string {
	if flag = strings.TrimSpace(flag); flag != "" {
		return flag
	}
	if v := strings.TrimSpace(os.Getenv("REVIEW_CONFIG")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = CacheMemory
	}
	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("REVIEW_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("REVIEW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REVIEW_PUBLIC_BASE_URL"); v != "" {
		cfg.PublicBaseURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("MINIO_PUBLIC_BASE_URL"); v != "" {
		cfg.MinioPublicBaseURL = v
	}
	if v := os.Getenv("REVIEW_CACHE_BACKEND"); v != "" {
		cfg.CacheBackend = v
	}
	if v := os.Getenv("REVIEW_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("REVIEW_BROWSER_URL"); v != "" {
		cfg.BrowserControlURL = v
		cfg.BrowserEnabled = true
	}
	if v := os.Getenv("REVIEW_TOKEN_SECRET"); v != "" {
		cfg.ReviewTokenSecret = v
	}
	if v := os.Getenv("JWT_LEEWAY"); v != "" {
		cfg.JWTLeeway = v
	}
	if v := os.Getenv("REVIEW_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("REVIEW_CAPTURE_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CaptureRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("REVIEW_UPLOAD_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.UploadRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("REVIEW_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("REVIEW_MAX_SURFACE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSurfaceSize = n
		}
	}
	if v := os.Getenv("REVIEW_DOM_ALLOW_HOSTS"); v != "" {
		cfg.DOMAllowHosts = splitCSV(v)
	}
	if v := os.Getenv("REVIEW_DOM_ALLOW_PRIVATE"); v != "" {
		cfg.DOMAllowPrivate = strings.EqualFold(v, "true") || v == "1"
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or REVIEW_PORT)")
	}
	switch cfg.CacheBackend {
	case CacheMemory:
	case CacheRedis:
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required for the redis cache backend")
		}
	case CacheSQLite:
		if cfg.CachePath == "" {
			return errors.New("config: cachePath is required for the sqlite cache backend")
		}
	default:
		return fmt.Errorf("config: unknown cacheBackend %q (memory, redis, sqlite)", cfg.CacheBackend)
	}
	if cfg.MinioEndpoint != "" {
		if cfg.MinioAccessKey == "" {
			return errors.New("config: minioAccessKey is required when minioEndpoint is set")
		}
		if cfg.MinioSecretKey == "" {
			return errors.New("config: minioSecretKey is required when minioEndpoint is set")
		}
		if cfg.MinioBucket == "" {
			return errors.New("config: minioBucket is required when minioEndpoint is set")
		}
	}
	if len(cfg.Users) == 0 && strings.TrimSpace(cfg.ReviewTokenSecret) == "" {
		return errors.New("config: users or reviewTokenSecret is required (set in config.yaml or REVIEW_TOKEN_SECRET)")
	}
	if cfg.CaptureRateLimitPerMinute < 0 || cfg.UploadRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must not be negative")
	}
	if cfg.ClearConcurrency < 0 {
		return errors.New("config: clearConcurrency must not be negative")
	}
	if cfg.MaxSurfaceSize < 0 {
		return errors.New("config: maxSurfaceSize must not be negative")
	}
	for name, value := range map[string]string{
		"jwtLeeway":      cfg.JWTLeeway,
		"remoteTimeout":  cfg.RemoteTimeout,
		"captureTimeout": cfg.CaptureTimeout,
	} {
		if _, err := ParseDuration(name, value); err != nil {
			return err
		}
	}
	return nil
}

// ParseDuration parses an optional duration field. Empty means zero, which
// callers treat as "use the default".
func ParseDuration(field, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", field, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("config: %s must not be negative", field)
	}
	return dur, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
