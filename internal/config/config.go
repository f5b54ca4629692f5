package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig
	Inbox     InboxConfig
	SMTP      SMTPConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
	Worker    WorkerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Host            string
	Port            int
	Mode            string // debug, release
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// InboxConfig 临时邮箱配置
type InboxConfig struct {
	Domain          string        // 收件域名
	AddressPrefix   string        // 本地部分前缀
	AddressLength   int           // 本地部分随机段长度
	DefaultTTL      time.Duration // 默认存活时间
	MaxTTL          time.Duration // 允许的最大存活时间
	MaxMessages     int           // 单邮箱邮件数量上限
	MaxMessageBytes int64         // 单封邮件大小上限
}

// SMTPConfig SMTP接收端配置
type SMTPConfig struct {
	BindAddr       string
	Hostname       string
	MaxConnections int
	ConnRate       int // 每秒新建连接数上限
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// SecurityConfig 加密与令牌配置
type SecurityConfig struct {
	EncryptionKey []byte // AES-256 密钥，32字节
	TokenSecret   string // JWT 签名密钥
	TokenIssuer   string
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	APIPerMinute       int
	InboxCreatePerHour int
}

// WorkerConfig 过期清理任务配置
type WorkerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string // memory, postgres, mysql
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig Redis配置（Address 为空时禁用）
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string
	Format     string // json, console
	OutputPath string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load 从环境变量与 .env 文件加载配置
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("TEMPBOX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			Mode:            v.GetString("server.mode"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Inbox: InboxConfig{
			Domain:          v.GetString("inbox.domain"),
			AddressPrefix:   v.GetString("inbox.address_prefix"),
			AddressLength:   v.GetInt("inbox.address_length"),
			DefaultTTL:      v.GetDuration("inbox.default_ttl"),
			MaxTTL:          v.GetDuration("inbox.max_ttl"),
			MaxMessages:     v.GetInt("inbox.max_messages"),
			MaxMessageBytes: v.GetInt64("inbox.max_message_bytes"),
		},
		SMTP: SMTPConfig{
			BindAddr:       v.GetString("smtp.bind_addr"),
			Hostname:       v.GetString("smtp.hostname"),
			MaxConnections: v.GetInt("smtp.max_connections"),
			ConnRate:       v.GetInt("smtp.conn_rate"),
			ReadTimeout:    v.GetDuration("smtp.read_timeout"),
			WriteTimeout:   v.GetDuration("smtp.write_timeout"),
		},
		Security: SecurityConfig{
			TokenSecret: v.GetString("security.token_secret"),
			TokenIssuer: v.GetString("security.token_issuer"),
		},
		RateLimit: RateLimitConfig{
			APIPerMinute:       v.GetInt("ratelimit.api_per_minute"),
			InboxCreatePerHour: v.GetInt("ratelimit.inbox_create_per_hour"),
		},
		Worker: WorkerConfig{
			Interval:    v.GetDuration("worker.interval"),
			BatchSize:   v.GetInt("worker.batch_size"),
			Concurrency: v.GetInt("worker.concurrency"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		CORS: CORSConfig{
			AllowOrigins: parseList(v.GetString("cors.allow_origins")),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			OutputPath: v.GetString("log.output_path"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
	}

	key, err := parseEncryptionKey(v.GetString("security.encryption_key"))
	if err != nil {
		return nil, err
	}
	cfg.Security.EncryptionKey = key

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("inbox.domain", "tempbox.local")
	v.SetDefault("inbox.address_prefix", "tmp_")
	v.SetDefault("inbox.address_length", 24)
	v.SetDefault("inbox.default_ttl", 24*time.Hour)
	v.SetDefault("inbox.max_ttl", 168*time.Hour)
	v.SetDefault("inbox.max_messages", 50)
	v.SetDefault("inbox.max_message_bytes", int64(10*1024*1024))

	v.SetDefault("smtp.bind_addr", ":2525")
	v.SetDefault("smtp.hostname", "tempbox.local")
	v.SetDefault("smtp.max_connections", 200)
	v.SetDefault("smtp.conn_rate", 50)
	v.SetDefault("smtp.read_timeout", 30*time.Second)
	v.SetDefault("smtp.write_timeout", 30*time.Second)

	v.SetDefault("security.token_issuer", "tempbox")

	v.SetDefault("ratelimit.api_per_minute", 60)
	v.SetDefault("ratelimit.inbox_create_per_hour", 10)

	v.SetDefault("worker.interval", 5*time.Minute)
	v.SetDefault("worker.batch_size", 100)
	v.SetDefault("worker.concurrency", 4)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cors.allow_origins", "*")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
}

// parseEncryptionKey 解析64位十六进制字符串为32字节AES密钥。
// 密钥缺失或非法时启动必须失败，绝不回退到弱密钥。
func parseEncryptionKey(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("TEMPBOX_SECURITY_ENCRYPTION_KEY is required (64 hex chars)")
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

func (c *Config) validate() error {
	if len(c.Security.TokenSecret) < 32 {
		return fmt.Errorf("TEMPBOX_SECURITY_TOKEN_SECRET must be at least 32 characters")
	}
	if c.Inbox.DefaultTTL <= 0 || c.Inbox.MaxTTL < c.Inbox.DefaultTTL {
		return fmt.Errorf("invalid inbox TTL configuration")
	}
	if c.Inbox.MaxMessages <= 0 || c.Inbox.MaxMessageBytes <= 0 {
		return fmt.Errorf("invalid inbox quota configuration")
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres", "mysql":
		if c.Database.DSN == "" {
			return fmt.Errorf("TEMPBOX_DATABASE_DSN is required for driver %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	return nil
}

func parseList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadEnvFile 尝试加载 .env 文件，不存在时忽略
func loadEnvFile() {
	_ = godotenv.Load()
}
