// Package sqlsession 把会话保存在关系型数据库的一张表中，支持 MySQL 和 PostgreSQL。
//
// 表名和列名都来自配置，默认与 express-mysql-session 相同：
// sessions(session_id, expires, data)。expires 保存 unix 毫秒，data 保存 JSON。
package sqlsession

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"time"

	"github.com/fyerfyer/fyer-session/logger"
	"github.com/fyerfyer/fyer-session/session"
)

// Schema 描述会话表的结构
type Schema struct {
	Table         string
	IDColumn      string
	ExpiresColumn string
	DataColumn    string
}

// DefaultSchema 返回默认表结构
func DefaultSchema() Schema {
	return Schema{
		Table:         "sessions",
		IDColumn:      "session_id",
		ExpiresColumn: "expires",
		DataColumn:    "data",
	}
}

var identRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// Validate 检查表名与列名，防止把任意字符串拼进 SQL
func (s Schema) Validate() error {
	names := map[string]string{
		"table":          s.Table,
		"id column":      s.IDColumn,
		"expires column": s.ExpiresColumn,
		"data column":    s.DataColumn,
	}
	for what, name := range names {
		if !identRegexp.MatchString(name) {
			return session.ErrInvalidConfig("sqlsession: invalid %s name %q", what, name)
		}
	}
	if s.IDColumn == s.ExpiresColumn || s.IDColumn == s.DataColumn || s.ExpiresColumn == s.DataColumn {
		return session.ErrInvalidConfig("sqlsession: column names must be distinct")
	}
	return nil
}

type queries struct {
	get    string
	upsert string
	delete string
	touch  string
	sweep  string
}

func buildQueries(d Dialect, s Schema) queries {
	t, id, exp, data := d.Quote(s.Table), d.Quote(s.IDColumn), d.Quote(s.ExpiresColumn), d.Quote(s.DataColumn)
	return queries{
		get:    "SELECT " + data + ", " + exp + " FROM " + t + " WHERE " + id + " = " + d.Placeholder(1),
		upsert: d.Upsert(s),
		delete: "DELETE FROM " + t + " WHERE " + id + " = " + d.Placeholder(1),
		touch: "UPDATE " + t + " SET " + exp + " = " + d.Placeholder(1) +
			" WHERE " + id + " = " + d.Placeholder(2) + " AND " + exp + " > " + d.Placeholder(3),
		sweep: "DELETE FROM " + t + " WHERE " + exp + " <= " + d.Placeholder(1),
	}
}

// Store 是基于 database/sql 的会话存储。
// 连接池由 *sql.DB 管理，Set 依赖数据库的行级 UPSERT 保证原子性
type Store struct {
	db            *sql.DB
	ownsDB        bool
	dialect       Dialect
	schema        Schema
	q             queries
	createTable   bool
	removeCorrupt bool
	now           func() time.Time
	log           logger.Logger
}

type Option func(*Store)

// WithDialect 设置 SQL 方言，默认 MySQL
func WithDialect(d Dialect) Option {
	return func(s *Store) {
		s.dialect = d
	}
}

// WithSchema 设置表名和列名
func WithSchema(schema Schema) Option {
	return func(s *Store) {
		s.schema = schema
	}
}

func WithTable(table string) Option {
	return func(s *Store) {
		s.schema.Table = table
	}
}

// WithCreateTable 为 true 时在 NewStore 中自动建表
func WithCreateTable(create bool) Option {
	return func(s *Store) {
		s.createTable = create
	}
}

func WithRemoveCorrupt(remove bool) Option {
	return func(s *Store) {
		s.removeCorrupt = remove
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// withOwnedDB 让 Close 同时关闭 db，Open 创建的连接池使用
func withOwnedDB() Option {
	return func(s *Store) {
		s.ownsDB = true
	}
}

// NewStore 使用已有的 *sql.DB 创建存储，Close 不会关闭传入的 db
func NewStore(ctx context.Context, db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, session.ErrInvalidConfig("sqlsession: db is required")
	}
	s := &Store{
		db:            db,
		dialect:       MySQL{},
		schema:        DefaultSchema(),
		removeCorrupt: true,
		now:           time.Now,
		log:           logger.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialect == nil {
		return nil, session.ErrInvalidConfig("sqlsession: dialect is required")
	}
	if err := s.schema.Validate(); err != nil {
		return nil, err
	}
	s.q = buildQueries(s.dialect, s.schema)
	s.log = s.log.WithFields(
		logger.String("component", "sqlsession"),
		logger.String("dialect", s.dialect.Name()),
		logger.String("table", s.schema.Table))

	if s.createTable {
		if err := s.CreateTable(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// CreateTable 创建会话表（如果不存在）
func (s *Store) CreateTable(ctx context.Context) error {
	for _, stmt := range s.dialect.CreateTable(s.schema) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return session.ErrUnavailable("create table", err)
		}
	}
	s.log.Info("session table ready")
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*session.Record, error) {
	var (
		data    []byte
		expires int64
	)
	err := s.db.QueryRowContext(ctx, s.q.get, id).Scan(&data, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, session.ErrUnavailable("select", err)
	}

	expiresAt := time.UnixMilli(expires)
	if !s.now().Before(expiresAt) {
		return nil, session.ErrNotFound
	}

	values, err := session.UnmarshalValues(id, data)
	if err != nil {
		if s.removeCorrupt {
			if _, derr := s.db.ExecContext(ctx, s.q.delete, id); derr != nil {
				s.log.Warn("failed to remove corrupt session row", logger.FieldError(derr))
			}
		}
		return nil, err
	}

	rec := session.NewRecord(id, expiresAt)
	rec.Values = values
	return rec, nil
}

func (s *Store) Set(ctx context.Context, rec *session.Record) error {
	if rec.Expired(s.now()) {
		return s.Destroy(ctx, rec.ID)
	}
	data, err := session.MarshalValues(rec.Values)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.q.upsert, rec.ID, rec.ExpiresAt.UnixMilli(), string(data)); err != nil {
		return session.ErrUnavailable("upsert", err)
	}
	return nil
}

func (s *Store) Destroy(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.q.delete, id); err != nil {
		return session.ErrUnavailable("delete", err)
	}
	return nil
}

// Touch 只更新 expires 列。已过期或不存在的记录返回 ErrNotFound
func (s *Store) Touch(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q.touch, expiresAt.UnixMilli(), id, s.now().UnixMilli())
	if err != nil {
		return session.ErrUnavailable("touch", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return session.ErrUnavailable("touch", err)
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q.sweep, s.now().UnixMilli())
	if err != nil {
		return 0, session.ErrUnavailable("sweep", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, session.ErrUnavailable("sweep", err)
	}
	return int(n), nil
}

// DB 返回底层连接池
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
