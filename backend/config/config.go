package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port            int           `mapstructure:"port"`
		Mode            string        `mapstructure:"mode"` // gin: debug / release / test
		ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
		MaxBodyBytes    int64         `mapstructure:"maxBodyBytes"`
	} `mapstructure:"running"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Kafka struct {
		Brokers     []string      `mapstructure:"brokers"`
		Topic       string        `mapstructure:"topic"`
		QueueSize   int           `mapstructure:"queueSize"`
		Workers     int           `mapstructure:"workers"`
		MaxRetry    int           `mapstructure:"maxRetry"`
		BaseBackoff time.Duration `mapstructure:"baseBackoff"`
		MaxBackoff  time.Duration `mapstructure:"maxBackoff"`
	} `mapstructure:"kafka"`
	Auth struct {
		// HS256 密钥；为空时不挂鉴权中间件（仅限本地开发）
		Secret string `mapstructure:"secret"`
	} `mapstructure:"auth"`
	Log struct {
		Level      string `mapstructure:"level"`
		Format     string `mapstructure:"format"`
		Path       string `mapstructure:"path"`
		MaxSizeMB  int    `mapstructure:"maxSizeMB"`
		MaxBackups int    `mapstructure:"maxBackups"`
		MaxAgeDays int    `mapstructure:"maxAgeDays"`
	} `mapstructure:"log"`
	Collab struct {
		RingCapacity  int           `mapstructure:"ringCapacity"`
		SubmitTimeout time.Duration `mapstructure:"submitTimeout"`
		PresenceTTL   time.Duration `mapstructure:"presenceTTL"`
		CursorTTL     time.Duration `mapstructure:"cursorTTL"`
		MaxInFlight   int           `mapstructure:"maxInFlight"`
		// /v1/delta/diff 单个文档的最大长度（字符 + embed）
		MaxDiffLength int           `mapstructure:"maxDiffLength"`
	} `mapstructure:"collab"`
}

const (
	configName = "deltaConfig"
	envPrefix  = "DELTA"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("running.port", 8090)
	v.SetDefault("running.mode", "release")
	v.SetDefault("running.shutdownTimeout", 10*time.Second)
	v.SetDefault("running.maxBodyBytes", 1<<20)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("mysql.dsn", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "doc-ops")
	v.SetDefault("kafka.queueSize", 10_000)
	v.SetDefault("kafka.workers", 4)
	v.SetDefault("kafka.maxRetry", 3)
	v.SetDefault("kafka.baseBackoff", 50*time.Millisecond)
	v.SetDefault("kafka.maxBackoff", time.Second)
	v.SetDefault("auth.secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.path", "")
	v.SetDefault("log.maxSizeMB", 50)
	v.SetDefault("log.maxBackups", 5)
	v.SetDefault("log.maxAgeDays", 14)
	v.SetDefault("collab.ringCapacity", 1024)
	v.SetDefault("collab.submitTimeout", 200*time.Millisecond)
	v.SetDefault("collab.presenceTTL", 600*time.Second)
	v.SetDefault("collab.cursorTTL", 600*time.Second)
	v.SetDefault("collab.maxInFlight", 100)
	v.SetDefault("collab.maxDiffLength", 20_000)
}

// Load reads deltaConfig.yaml from the given directories (or the usual
// ./backend/config, ./config, . when none are given). A missing file is not
// an error: defaults and DELTA_* environment variables still apply, e.g.
// DELTA_KAFKA_TOPIC overrides kafka.topic.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		// 兼容从项目根目录或 backend 目录启动
		paths = []string{"./backend/config", "./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
