// Package redissession 把会话保存在 Redis 中，过期完全依赖 Redis 的键 TTL
package redissession

import (
	"context"
	"errors"
	"time"

	"github.com/fyerfyer/fyer-kit/pool"
	"github.com/fyerfyer/fyer-session/logger"
	"github.com/fyerfyer/fyer-session/session"
	"github.com/go-redis/redis/v8"
)

const DefaultPrefix = "session"

var errInvalidConn = errors.New("redissession: pooled connection is not a *redis.Client")

// Store 是基于 Redis 的会话存储。
//
// 每个会话对应一个字符串键 <prefix>:<id>，值为 JSON，
// 写入时 TTL 设为 expiresAt - now，因此 SweepExpired 无事可做
type Store struct {
	redisPool     pool.Pool
	prefix        string
	removeCorrupt bool
	shutdown      time.Duration
	onClose       func() error
	now           func() time.Time
	log           logger.Logger
}

type Option func(*Store)

// WithPrefix 设置键前缀，默认 "session"
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

func WithRemoveCorrupt(remove bool) Option {
	return func(s *Store) {
		s.removeCorrupt = remove
	}
}

// WithShutdownTimeout 设置 Close 时等待连接池关闭的时间
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.shutdown = d
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

// withCloser 在连接池关闭之后执行，Dial 用它关闭自己创建的客户端
func withCloser(fn func() error) Option {
	return func(s *Store) {
		s.onClose = fn
	}
}

// NewStore 使用连接池创建 Redis 会话存储
func NewStore(redisPool pool.Pool, opts ...Option) *Store {
	s := &Store{
		redisPool:     redisPool,
		prefix:        DefaultPrefix,
		removeCorrupt: true,
		shutdown:      5 * time.Second,
		now:           time.Now,
		log:           logger.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithFields(logger.String("component", "redissession"), logger.String("prefix", s.prefix))
	return s
}

func (s *Store) key(id string) string {
	if s.prefix == "" {
		return id
	}
	return s.prefix + ":" + id
}

// withClient 从连接池取出客户端执行 fn，并根据结果归还连接。
// redis.Nil 不代表连接有问题，不会让连接池丢弃连接
func (s *Store) withClient(ctx context.Context, fn func(client *redis.Client) error) error {
	conn, err := s.redisPool.Get(ctx)
	if err != nil {
		return err
	}
	client, ok := conn.Raw().(*redis.Client)
	if !ok {
		_ = s.redisPool.Put(conn, errInvalidConn)
		return errInvalidConn
	}

	err = fn(client)
	var connErr error
	if err != nil && !errors.Is(err, redis.Nil) {
		connErr = err
	}
	if perr := s.redisPool.Put(conn, connErr); perr != nil {
		s.log.Debug("failed to return connection to pool", logger.FieldError(perr))
	}
	return err
}

// Get 在一个事务中读取值和剩余 TTL，expiresAt 以 Redis 的 TTL 为准
func (s *Store) Get(ctx context.Context, id string) (*session.Record, error) {
	var (
		getCmd *redis.StringCmd
		ttlCmd *redis.DurationCmd
	)
	key := s.key(id)
	err := s.withClient(ctx, func(client *redis.Client) error {
		_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			getCmd = pipe.Get(ctx, key)
			ttlCmd = pipe.PTTL(ctx, key)
			return nil
		})
		return err
	})
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, session.ErrUnavailable("get", err)
	}

	blob, err := getCmd.Bytes()
	if err != nil {
		return nil, session.ErrNotFound
	}
	rec, err := session.Unmarshal(id, blob)
	if err != nil {
		if s.removeCorrupt {
			if derr := s.Destroy(ctx, id); derr != nil {
				s.log.Warn("failed to remove corrupt session", logger.FieldError(derr))
			}
		}
		return nil, err
	}

	now := s.now()
	// PTTL 为 -1 表示没有 TTL，-2 表示键不存在
	if ttl := ttlCmd.Val(); ttl > 0 {
		rec.ExpiresAt = now.Add(ttl)
	} else if ttl == -2 {
		return nil, session.ErrNotFound
	}
	if rec.Expired(now) {
		return nil, session.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Set(ctx context.Context, rec *session.Record) error {
	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.Destroy(ctx, rec.ID)
	}
	blob, err := session.Marshal(rec)
	if err != nil {
		return err
	}
	err = s.withClient(ctx, func(client *redis.Client) error {
		return client.Set(ctx, s.key(rec.ID), blob, ttl).Err()
	})
	if err != nil {
		return session.ErrUnavailable("set", err)
	}
	return nil
}

func (s *Store) Destroy(ctx context.Context, id string) error {
	err := s.withClient(ctx, func(client *redis.Client) error {
		return client.Del(ctx, s.key(id)).Err()
	})
	if err != nil {
		return session.ErrUnavailable("del", err)
	}
	return nil
}

// Touch 使用 PEXPIRE 续期，不重写数据
func (s *Store) Touch(ctx context.Context, id string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.Destroy(ctx, id)
	}
	var ok bool
	err := s.withClient(ctx, func(client *redis.Client) error {
		var err error
		ok, err = client.PExpire(ctx, s.key(id), ttl).Result()
		return err
	})
	if err != nil {
		return session.ErrUnavailable("pexpire", err)
	}
	if !ok {
		return session.ErrNotFound
	}
	return nil
}

// SweepExpired Redis 会自行删除过期的键，这里总是返回 0
func (s *Store) SweepExpired(context.Context) (int, error) {
	return 0, nil
}

// Close 关闭连接池
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()

	err := s.redisPool.Shutdown(ctx)
	if s.onClose != nil {
		if cerr := s.onClose(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
