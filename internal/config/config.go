// Package config 从 .env、环境变量和默认值加载配置
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultAccessSecret  = "commUnity-access-secret-change-me"
	defaultRefreshSecret = "commUnity-refresh-secret-change-me"
)

type Config struct {
	Port           string  `mapstructure:"PORT"`
	Env            string  `mapstructure:"APP_ENV"`
	MySQLDSN       string  `mapstructure:"MYSQL_DSN"`
	RedisAddr      string  `mapstructure:"REDIS_ADDR"`
	RedisPassword  string  `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int     `mapstructure:"REDIS_DB"`
	AccessSecret   string  `mapstructure:"JWT_ACCESS_SECRET"`
	RefreshSecret  string  `mapstructure:"JWT_REFRESH_SECRET"`
	SMTPHost       string  `mapstructure:"SMTP_HOST"`
	SMTPPort       int     `mapstructure:"SMTP_PORT"`
	SMTPUsername   string  `mapstructure:"SMTP_USERNAME"`
	SMTPPassword   string  `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom       string  `mapstructure:"SMTP_FROM"`
	OTPStore       string  `mapstructure:"OTP_STORE"`
	RelayBus       string  `mapstructure:"RELAY_BUS"`
	UploadDir      string  `mapstructure:"UPLOAD_DIR"`
	PublicBaseURL  string  `mapstructure:"PUBLIC_BASE_URL"`
	AllowedOrigins string  `mapstructure:"ALLOWED_ORIGINS"`
	TrustedProxies string  `mapstructure:"TRUSTED_PROXIES"`
	KafkaBrokers   string  `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic     string  `mapstructure:"KAFKA_TOPIC"`
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
}

// Load 先读可选的 .env，再读环境变量；缺省项使用开发环境默认值
func Load() (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "5000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("MYSQL_DSN", "root:password@tcp(127.0.0.1:3306)/community?charset=utf8mb4&parseTime=True&loc=Local")
	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_ACCESS_SECRET", defaultAccessSecret)
	v.SetDefault("JWT_REFRESH_SECRET", defaultRefreshSecret)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "commUnity <no-reply@community.local>")
	v.SetDefault("OTP_STORE", "memory")
	v.SetDefault("RELAY_BUS", "local")
	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:5000")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	// 默认不信任任何代理，ClientIP 取连接的远端地址
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "community.activity")
	v.SetDefault("RATE_LIMIT_RPS", 1.0)
	v.SetDefault("RATE_LIMIT_BURST", 5)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

func (c *Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

func (c *Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

func (c *Config) Proxies() []string {
	return splitList(c.TrustedProxies)
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.MySQLDSN == "" {
		return errors.New("MYSQL_DSN is required")
	}
	if c.AccessSecret == "" || c.RefreshSecret == "" {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required")
	}
	switch c.OTPStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("OTP_STORE must be memory or redis, got %q", c.OTPStore)
	}
	switch c.RelayBus {
	case "local", "redis":
	default:
		return fmt.Errorf("RELAY_BUS must be local or redis, got %q", c.RelayBus)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	for _, p := range c.Proxies() {
		if _, _, err := net.ParseCIDR(p); err != nil && net.ParseIP(p) == nil {
			return fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP or CIDR", p)
		}
	}

	if c.IsProduction() {
		if c.AccessSecret == defaultAccessSecret || c.RefreshSecret == defaultRefreshSecret {
			return errors.New("JWT secrets must be changed from the default value in production")
		}
		if len(c.AccessSecret) < 32 || len(c.RefreshSecret) < 32 {
			return errors.New("JWT secrets must be at least 32 characters in production")
		}
		if c.AllowedOrigins == "*" {
			return errors.New("ALLOWED_ORIGINS cannot be '*' in production")
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
