package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Seckill  SeckillConfig  `mapstructure:"seckill"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

type SeckillConfig struct {
	QueueSize    int           `mapstructure:"queue_size"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	RateLimitQPS float64       `mapstructure:"rate_limit_qps"`
	RateBurst    int           `mapstructure:"rate_burst"`
}

// Load 读取配置文件并叠加环境变量（前缀 SECKILL_），配置文件可缺省
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=seckill port=5432 sslmode=disable")
	v.SetDefault("auth.secret", "")
	v.SetDefault("seckill.queue_size", 1<<20)
	v.SetDefault("seckill.lock_ttl", 5*time.Second)
	v.SetDefault("seckill.cache_ttl", 10*time.Minute)
	v.SetDefault("seckill.rate_limit_qps", 2000.0)
	v.SetDefault("seckill.rate_burst", 4000)

	v.SetEnvPrefix("SECKILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
