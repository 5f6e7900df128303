package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig `mapstructure:"jwt"`
	Log      LogConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Events   EventsConfig
	Lock     LockConfig
	Channel  ChannelConfig
	Ledger   LedgerConfig
	CORS     CORSConfig
}

type ServerConfig struct {
	Port  string
	Mode  string
	Store string // gorm 或 memory（仅开发用）
}

type DatabaseConfig struct {
	Driver   string // postgres 或 mysql
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey     string `mapstructure:"secret_key"`     // JWT密钥
	TokenDuration string `mapstructure:"token_duration"` // 令牌有效期，如 "24h"
}

type LogConfig struct {
	Level      string
	FilePath   string
	MaxSize    int    // MB
	MaxBackups int    // 保留的备份文件数
	MaxAge     int    // 保留天数
	Compress   bool   // 是否压缩
	Format     string // json 或 text
}

type RedisConfig struct {
	Host     string // Redis主机地址
	Port     int    // Redis端口
	Password string // Redis密码
	DB       int    // Redis数据库编号
	Prefix   string // 键前缀
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// EventsConfig 预订事件出站配置
type EventsConfig struct {
	Backend   string // kafka / redis / log
	Buffer    int    // 缓冲队列长度
	Workers   int    // 投递协程数
	RedisChan string // redis 发布频道
}

// LockConfig 单元级互斥锁配置
type LockConfig struct {
	Backend string        // local 或 redis
	TTL     time.Duration // redis 锁过期时间
}

// ChannelConfig 渠道映射与日历同步配置
type ChannelConfig struct {
	ExportBaseURL string
	ReconcileCron string
	ICalSyncCron  string
	FetchMode     string // mock 或 http
	FetchTimeout  time.Duration
	SyncWorkers   int
}

type LedgerConfig struct {
	DefaultCurrency string
}

type CORSConfig struct {
	AllowOrigins     []string // 允许的源
	AllowMethods     []string // 允许的HTTP方法
	AllowHeaders     []string // 允许的请求头
	ExposeHeaders    []string // 暴露的响应头
	AllowCredentials bool     // 是否允许携带凭证
	MaxAge           int      // 预检请求缓存时间（小时）
}

// 全局配置实例和同步锁
var (
	globalConfig *Config
	once         sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		var err error
		globalConfig, err = LoadConfig()
		if err != nil {
			panic("Failed to load config: " + err.Error())
		}
	})
	return globalConfig
}

// 获取环境变量，如果不存在则使用默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// 获取环境变量转换为int
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// 获取环境变量转换为bool
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}

// 获取环境变量转换为时长，如 "20s"
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// 获取环境变量转换为字符串数组（逗号分隔）
func getEnvAsStringArray(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultValue
}

func LoadConfig() (*Config, error) {
	// .env 不存在时直接使用环境变量
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:  getEnv("SERVER_PORT", "8080"),
			Mode:  getEnv("SERVER_MODE", "debug"),
			Store: getEnv("STORE", "gorm"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "apartel"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			SecretKey:     getEnv("JWT_SECRET_KEY", "default-secret-change-me"),
			TokenDuration: getEnv("JWT_TOKEN_DURATION", "24h"),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			FilePath:   getEnv("LOG_FILE_PATH", "logs/app.log"),
			MaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 7),
			MaxAge:     getEnvAsInt("LOG_MAX_AGE", 30),
			Compress:   getEnvAsBool("LOG_COMPRESS", true),
			Format:     getEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "apartel"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsStringArray("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_BOOKING_TOPIC", "booking-events"),
		},
		Events: EventsConfig{
			Backend:   getEnv("EVENTS_BACKEND", "log"),
			Buffer:    getEnvAsInt("EVENTS_BUFFER", 1000),
			Workers:   getEnvAsInt("EVENTS_WORKERS", 4),
			RedisChan: getEnv("EVENTS_REDIS_CHANNEL", "bookings"),
		},
		Lock: LockConfig{
			Backend: getEnv("LOCK_BACKEND", "local"),
			TTL:     getEnvAsDuration("LOCK_TTL", 10*time.Second),
		},
		Channel: ChannelConfig{
			ExportBaseURL: getEnv("CHANNEL_EXPORT_BASE_URL", "https://api.apartel.app"),
			ReconcileCron: getEnv("CHANNEL_RECONCILE_CRON", "@hourly"),
			ICalSyncCron:  getEnv("ICAL_SYNC_CRON", "0 */15 * * * *"),
			FetchMode:     getEnv("ICAL_FETCH_MODE", "mock"),
			FetchTimeout:  getEnvAsDuration("ICAL_FETCH_TIMEOUT", 20*time.Second),
			SyncWorkers:   getEnvAsInt("ICAL_SYNC_WORKERS", 4),
		},
		Ledger: LedgerConfig{
			DefaultCurrency: getEnv("LEDGER_DEFAULT_CURRENCY", "USD"),
		},
		CORS: CORSConfig{
			AllowOrigins:     getEnvAsStringArray("CORS_ALLOW_ORIGINS", []string{"*"}),
			AllowMethods:     getEnvAsStringArray("CORS_ALLOW_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}),
			AllowHeaders:     getEnvAsStringArray("CORS_ALLOW_HEADERS", []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"}),
			ExposeHeaders:    getEnvAsStringArray("CORS_EXPOSE_HEADERS", []string{"Content-Length", "Content-Type"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getEnvAsInt("CORS_MAX_AGE", 12),
		},
	}

	return config, nil
}
