package sqlsession

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/fyerfyer/fyer-session/internal/retry"
	"github.com/fyerfyer/fyer-session/logger"
	"github.com/fyerfyer/fyer-session/session"
	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Config 描述如何连接数据库
type Config struct {
	// Dialect 为 mysql 或 postgres
	Dialect  string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// Params 附加的连接参数
	Params map[string]string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration

	Retry retry.Policy
}

// DSN 根据方言生成连接字符串
func (c Config) DSN() (string, error) {
	switch c.Dialect {
	case "mysql", "":
		return c.mysqlDSN(), nil
	case "postgres":
		return c.postgresDSN(), nil
	default:
		return "", session.ErrInvalidConfig("sqlsession: unsupported dialect %q", c.Dialect)
	}
}

func (c Config) addr(defaultPort int) string {
	port := c.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c Config) mysqlDSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = c.addr(3306)
	cfg.DBName = c.Database
	cfg.Collation = "utf8mb4_bin"
	// Touch 依赖 RowsAffected 统计匹配行数而不是变更行数
	cfg.ClientFoundRows = true
	cfg.Timeout = c.ConnectTimeout
	if len(c.Params) > 0 {
		cfg.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN()
}

func (c Config) postgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   c.addr(5432),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	q := url.Values{}
	for k, v := range c.Params {
		q.Set(k, v)
	}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Open 建立连接池，按重试策略等待数据库可用，然后创建 Store。
// 返回的 Store 拥有连接池，Close 时会一并关闭
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Host == "" {
		return nil, session.ErrInvalidConfig("sqlsession: host is required")
	}
	if cfg.Dialect == "" {
		cfg.Dialect = "mysql"
	}
	dialect, ok := GetDialect(cfg.Dialect)
	if !ok {
		return nil, session.ErrInvalidConfig("sqlsession: unsupported dialect %q", cfg.Dialect)
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, session.ErrInvalidConfig("sqlsession: %v", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	policy := cfg.Retry
	if policy.Attempts == 0 {
		policy = retry.DefaultPolicy()
	}
	err = retry.Do(ctx, policy, dialect.Name(), logger.GetDefaultLogger(), func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	if err != nil {
		_ = db.Close()
		return nil, session.ErrUnavailable("connect", err)
	}

	opts = append([]Option{WithDialect(dialect)}, opts...)
	opts = append(opts, withOwnedDB())
	store, err := NewStore(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
