package config

import (
	"context"

	"github.com/fyerfyer/fyer-session/logger"
	"github.com/fyerfyer/fyer-session/session"
	"github.com/fyerfyer/fyer-session/session/filesession"
	"github.com/fyerfyer/fyer-session/session/instrument"
	"github.com/fyerfyer/fyer-session/session/memsession"
	"github.com/fyerfyer/fyer-session/session/redissession"
	"github.com/fyerfyer/fyer-session/session/sqlsession"
	"github.com/prometheus/client_golang/prometheus"
)

// StoreOptions 控制 OpenStore 的附加行为
type StoreOptions struct {
	Logger logger.Logger
	// Registerer 为空时不注册存储层指标
	Registerer prometheus.Registerer
	// Tracing 为 true 时为每个存储操作创建 span
	Tracing bool
	// CreateTable 覆盖 SESSION_SQL_CREATE_TABLE
	CreateTable bool
}

// OpenStore 按 SESSION_BACKEND 创建存储并套上监控装饰器
func OpenStore(ctx context.Context, cfg *Config, opts StoreOptions) (session.Store, error) {
	log := opts.Logger
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	var (
		store session.Store
		err   error
	)
	switch cfg.Backend {
	case BackendMemory:
		store = memsession.NewStore()
	case BackendFile:
		store, err = filesession.NewStore(cfg.FileDir, filesession.WithLogger(log))
	case BackendMySQL, BackendPostgres:
		store, err = OpenSQL(ctx, cfg, log, opts.CreateTable)
	case BackendRedis:
		store, err = redissession.Dial(ctx, cfg.RedisConnConfig(),
			redissession.WithPrefix(cfg.Redis.KeyPrefix),
			redissession.WithLogger(log))
	default:
		err = session.ErrInvalidConfig("config: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	var mws []session.StoreMiddleware
	if opts.Registerer != nil {
		m, err := instrument.MetricsBuilder{
			Namespace:  "fyer",
			Subsystem:  "session",
			Backend:    cfg.Backend,
			Registerer: opts.Registerer,
		}.Build()
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		mws = append(mws, m.Middleware())
	}
	if opts.Tracing {
		mws = append(mws, instrument.TracingBuilder{Backend: cfg.Backend}.Build())
	}
	log.Info("session store ready", logger.String("backend", cfg.Backend))
	return session.Chain(store, mws...), nil
}

// OpenSQL 打开 mysql 或 postgres 存储
func OpenSQL(ctx context.Context, cfg *Config, log logger.Logger, createTable bool) (*sqlsession.Store, error) {
	if cfg.Backend != BackendMySQL && cfg.Backend != BackendPostgres {
		return nil, session.ErrInvalidConfig("config: backend %q is not a sql backend", cfg.Backend)
	}
	return sqlsession.Open(ctx, cfg.SQLConnConfig(),
		sqlsession.WithSchema(cfg.SQLSchema()),
		sqlsession.WithCreateTable(createTable || cfg.SQL.CreateTable),
		sqlsession.WithLogger(log))
}
