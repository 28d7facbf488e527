// 包 config：进程配置，先加载 .env 再由环境变量解析为类型化结构
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Secret：密钥值；任何格式化与日志输出均为掩码
type Secret string

func (s *Secret) UnmarshalText(b []byte) error {
	*s = Secret(b)
	return nil
}

func (s Secret) String() string { return "[redacted]" }

func (s Secret) LogValue() slog.Value { return slog.StringValue("[redacted]") }

func (s Secret) Bytes() []byte { return []byte(s) }

type Postgres struct {
	Host         string `env:"PG_HOST" envDefault:"127.0.0.1"`
	Port         string `env:"PG_PORT" envDefault:"5432"`
	User         string `env:"PG_USER" envDefault:"postgres"`
	Password     string `env:"PG_PASSWORD"`
	DB           string `env:"PG_DB" envDefault:"imeisim"`
	SSLMode      string `env:"PG_SSLMODE" envDefault:"disable"`
	MaxOpenConns int    `env:"PG_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns int    `env:"PG_MAX_IDLE_CONNS" envDefault:"5"`
}

type Redis struct {
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	Host     string `env:"REDIS_HOST" envDefault:"127.0.0.1"`
	Port     string `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type Snap struct {
	Enabled bool          `env:"SNAP_ENABLED" envDefault:"false"`
	BaseURL string        `env:"OSRM_BASE_URL" envDefault:"https://router.project-osrm.org"`
	Timeout time.Duration `env:"SNAP_TIMEOUT" envDefault:"3s"`
	Workers int           `env:"SNAP_WORKERS" envDefault:"5"`
}

type Cache struct {
	TTL       time.Duration `env:"CACHE_TTL" envDefault:"1h"`
	LocalSize int           `env:"CACHE_LOCAL_SIZE" envDefault:"4096"`
}

type Sweep struct {
	Enabled       bool `env:"SWEEP_ENABLED" envDefault:"true"`
	RetentionDays int  `env:"SWEEP_RETENTION_DAYS" envDefault:"7"`
}

type TLS struct {
	Enabled  bool   `env:"TLS_ENABLE" envDefault:"false"`
	CertPath string `env:"TLS_CERT_PATH" envDefault:"data/certs/server.crt"`
	KeyPath  string `env:"TLS_KEY_PATH" envDefault:"data/certs/server.key"`
}

type RateLimit struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"false"`
	QPS     int  `env:"RATE_LIMIT_QPS" envDefault:"100"`
}

// Config：服务全部配置
// 约束：SECRET_KEY 必填且非空，解析后立即从进程环境中移除。
type Config struct {
	Addr          string        `env:"ADDR" envDefault:":8080"`
	APIBase       string        `env:"API_BASE" envDefault:"/api/v1"`
	SecretKey     Secret        `env:"SECRET_KEY,required,notEmpty,unset"`
	StoreDriver   string        `env:"STORE_DRIVER" envDefault:"postgres"`
	SQLitePath    string        `env:"SQLITE_PATH" envDefault:"imeisim.db"`
	QuotaCapacity int           `env:"QUOTA_CAPACITY" envDefault:"3"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"2s"`
	LabelsFile    string        `env:"LABELS_FILE"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string        `env:"LOG_FORMAT" envDefault:"text"`

	// TrustUserHeader 仅在前置网关已鉴权并改写 X-User-ID 时开启
	TrustUserHeader bool `env:"TRUST_USER_HEADER" envDefault:"false"`

	PG        Postgres
	Redis     Redis
	Snap      Snap
	Cache     Cache
	Sweep     Sweep
	RateLimit RateLimit
	TLS       TLS
}

// Load：加载 .env 与 data/env/.env（若存在），随后解析环境变量
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	return Parse()
}

// Parse：仅从当前进程环境解析并校验
func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.QuotaCapacity < 1 {
		return fmt.Errorf("QUOTA_CAPACITY must be >= 1, got %d", c.QuotaCapacity)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if c.Snap.Workers < 1 {
		return fmt.Errorf("SNAP_WORKERS must be >= 1, got %d", c.Snap.Workers)
	}
	if c.Sweep.RetentionDays < 1 {
		return fmt.Errorf("SWEEP_RETENTION_DAYS must be >= 1, got %d", c.Sweep.RetentionDays)
	}
	switch c.StoreDriver {
	case "postgres", "postgresql", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}
