// Package config 从环境变量加载会话服务的配置。
//
// 所有变量都带 SESSION_ 前缀，启动时会先尝试读取当前目录下的 .env 文件。
package config

import (
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/fyerfyer/fyer-session/internal/retry"
	"github.com/fyerfyer/fyer-session/logger"
	"github.com/fyerfyer/fyer-session/session"
	"github.com/fyerfyer/fyer-session/session/redissession"
	"github.com/fyerfyer/fyer-session/session/sqlsession"
	"github.com/joho/godotenv"
)

// Prefix 是所有环境变量的前缀
const Prefix = "SESSION_"

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendMySQL    = "mysql"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":3000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Secrets 用于签名 cookie，多个值用逗号分隔，第一个用于签名
	Secrets []string `env:"SECRET" envSeparator:","`

	Cookie CookieConfig `envPrefix:"COOKIE_"`

	TTL               time.Duration `env:"TTL" envDefault:"24h"`
	ResaveAlways      bool          `env:"RESAVE_ALWAYS" envDefault:"false"`
	SaveUninitialized bool          `env:"SAVE_UNINITIALIZED" envDefault:"false"`
	SlidingExpiration bool          `env:"SLIDING_EXPIRATION" envDefault:"true"`
	Rolling           bool          `env:"ROLLING" envDefault:"false"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"15m"`

	Backend string `env:"BACKEND" envDefault:"memory"`
	FileDir string `env:"FILE_DIR" envDefault:"./sessions"`

	SQL   SQLConfig   `envPrefix:"SQL_"`
	Redis RedisConfig `envPrefix:"REDIS_"`

	ConnectRetries int           `env:"CONNECT_RETRIES" envDefault:"5"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`
}

type CookieConfig struct {
	Name     string `env:"NAME" envDefault:"connect.sid"`
	Path     string `env:"PATH" envDefault:"/"`
	Domain   string `env:"DOMAIN"`
	Secure   bool   `env:"SECURE" envDefault:"false"`
	HTTPOnly bool   `env:"HTTP_ONLY" envDefault:"true"`
	SameSite string `env:"SAME_SITE" envDefault:"lax"`
}

type SQLConfig struct {
	Host          string `env:"HOST" envDefault:"localhost"`
	Port          int    `env:"PORT"`
	User          string `env:"USER"`
	Password      string `env:"PASSWORD"`
	Database      string `env:"DATABASE" envDefault:"sessions"`
	Table         string `env:"TABLE" envDefault:"sessions"`
	IDColumn      string `env:"ID_COLUMN" envDefault:"session_id"`
	ExpiresColumn string `env:"EXPIRES_COLUMN" envDefault:"expires"`
	DataColumn    string `env:"DATA_COLUMN" envDefault:"data"`
	MaxOpenConns  int    `env:"MAX_OPEN_CONNS" envDefault:"10"`
	CreateTable   bool   `env:"CREATE_TABLE" envDefault:"false"`
}

type RedisConfig struct {
	Host      string `env:"HOST" envDefault:"localhost"`
	Port      int    `env:"PORT" envDefault:"6379"`
	Password  string `env:"PASSWORD"`
	DB        int    `env:"DB" envDefault:"0"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"session"`
	PoolSize  int    `env:"POOL_SIZE" envDefault:"10"`
}

// Load 读取 .env（文件不存在时忽略）和环境变量并校验
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, session.ErrInvalidConfig("config: load %s: %v", f, err)
		}
	}
	return Parse(env.Options{Prefix: Prefix})
}

// Parse 按给定选项解析配置，测试中可以通过 Environment 注入变量
func Parse(opts env.Options) (*Config, error) {
	if opts.Prefix == "" {
		opts.Prefix = Prefix
	}
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, session.ErrInvalidConfig("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置，错误均包装为 session.ErrConfiguration
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendFile, BackendMySQL, BackendPostgres, BackendRedis:
	default:
		return session.ErrInvalidConfig("config: unknown backend %q", c.Backend)
	}
	if c.TTL < time.Second {
		return session.ErrInvalidConfig("config: ttl must be at least 1s, got %s", c.TTL)
	}
	if c.SweepInterval <= 0 {
		return session.ErrInvalidConfig("config: sweep interval must be positive")
	}
	if _, err := c.SameSite(); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return session.ErrInvalidConfig("config: %v", err)
	}
	if c.Backend == BackendFile && c.FileDir == "" {
		return session.ErrInvalidConfig("config: file backend requires SESSION_FILE_DIR")
	}
	// SameSite=None 的 cookie 必须同时设置 Secure，否则浏览器会拒绝
	if strings.EqualFold(c.Cookie.SameSite, "none") && !c.Cookie.Secure {
		return session.ErrInvalidConfig("config: SameSite=None requires a secure cookie")
	}
	if c.ConnectRetries < 1 {
		return session.ErrInvalidConfig("config: connect retries must be at least 1")
	}
	return nil
}

// SameSite 解析 cookie 的 SameSite 属性
func (c *Config) SameSite() (http.SameSite, error) {
	switch strings.ToLower(c.Cookie.SameSite) {
	case "lax", "":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, session.ErrInvalidConfig("config: invalid SameSite %q", c.Cookie.SameSite)
	}
}

// Level 返回日志级别，Validate 已经保证可以解析
func (c *Config) Level() logger.LogLevel {
	l, _ := logger.ParseLevel(c.LogLevel)
	return l
}

// RetryPolicy 返回后端连接的重试策略
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.Attempts = c.ConnectRetries
	return p
}

// ManagerOptions 把配置转换为 session.Manager 的选项
func (c *Config) ManagerOptions() []session.ManagerOption {
	sameSite, _ := c.SameSite()
	return []session.ManagerOption{
		session.WithTTL(c.TTL),
		session.WithCookie(session.CookieOptions{
			Name:     c.Cookie.Name,
			Path:     c.Cookie.Path,
			Domain:   c.Cookie.Domain,
			HTTPOnly: c.Cookie.HTTPOnly,
			Secure:   c.Cookie.Secure,
			SameSite: sameSite,
		}),
		session.WithResaveAlways(c.ResaveAlways),
		session.WithSaveUninitialized(c.SaveUninitialized),
		session.WithSlidingExpiration(c.SlidingExpiration),
		session.WithRolling(c.Rolling),
	}
}

// SQLSchema 返回会话表结构
func (c *Config) SQLSchema() sqlsession.Schema {
	return sqlsession.Schema{
		Table:         c.SQL.Table,
		IDColumn:      c.SQL.IDColumn,
		ExpiresColumn: c.SQL.ExpiresColumn,
		DataColumn:    c.SQL.DataColumn,
	}
}

// SQLConnConfig 返回数据库连接配置，dialect 为 mysql 或 postgres
func (c *Config) SQLConnConfig() sqlsession.Config {
	return sqlsession.Config{
		Dialect:        c.Backend,
		Host:           c.SQL.Host,
		Port:           c.SQL.Port,
		User:           c.SQL.User,
		Password:       c.SQL.Password,
		Database:       c.SQL.Database,
		MaxOpenConns:   c.SQL.MaxOpenConns,
		MaxIdleConns:   c.SQL.MaxOpenConns,
		ConnectTimeout: c.ConnectTimeout,
		Retry:          c.RetryPolicy(),
	}
}

// RedisConnConfig 返回 Redis 连接配置
func (c *Config) RedisConnConfig() redissession.Config {
	pool := redissession.DefaultPoolConfig()
	if c.Redis.PoolSize > 0 {
		pool.MaxActive = c.Redis.PoolSize
		pool.MaxIdle = min(pool.MaxIdle, c.Redis.PoolSize)
	}
	return redissession.Config{
		Host:        c.Redis.Host,
		Port:        c.Redis.Port,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		DialTimeout: c.ConnectTimeout,
		Pool:        pool,
		Retry:       c.RetryPolicy(),
	}
}
