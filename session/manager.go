package session

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/fyerfyer/fyer-session/logger"
)

// Manager 负责单个请求内会话的解析与提交。
//
// Resolve 从 cookie 值加载会话，加载失败时创建新会话；
// Commit 在请求结束前把会话写回 Store 并给出 cookie 指令。
// Manager 本身不持有锁，可以被所有请求共享。
type Manager struct {
	store             Store
	ttl               time.Duration
	cookie            CookieOptions
	resaveAlways      bool
	saveUninitialized bool
	sliding           bool
	rolling           bool
	log               logger.Logger
	now               func() time.Time
}

// NewManager 创建 Manager，配置非法时返回 ErrConfiguration
func NewManager(store Store, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		store:   store,
		ttl:     DefaultTTL,
		cookie:  defaultCookieOptions(),
		sliding: true,
		log:     logger.GetDefaultLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.store == nil {
		return nil, ErrInvalidConfig("store is required")
	}
	if m.ttl < time.Second {
		return nil, ErrInvalidConfig("ttl must be at least 1s, got %s", m.ttl)
	}
	if !validCookieName(m.cookie.Name) {
		return nil, ErrInvalidConfig("invalid cookie name %q", m.cookie.Name)
	}
	if m.cookie.Path == "" {
		m.cookie.Path = "/"
	}
	m.log = m.log.WithField("component", "session.manager")
	return m, nil
}

func (m *Manager) Store() Store {
	return m.store
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func (m *Manager) CookieName() string {
	return m.cookie.Name
}

// Resolve 根据 cookie 中的会话 ID 加载会话。
// 没有 cookie、ID 无效、记录不存在或后端故障时都会返回一个新会话，不会返回错误
func (m *Manager) Resolve(ctx context.Context, cookieValue string) *Record {
	if cookieValue == "" {
		return m.newRecord()
	}
	log := m.log.WithContext(ctx)
	if !ValidID(cookieValue) {
		log.Debug("malformed session id, issuing new session")
		return m.newRecord()
	}

	rec, err := m.store.Get(ctx, cookieValue)
	switch {
	case err == nil:
		// 双重检查，防止后端返回了已过期的记录
		if rec.Expired(m.now()) {
			return m.newRecord()
		}
		rec.markClean()
		return rec
	case errors.Is(err, ErrNotFound):
		log.Debug("session not found, issuing new session")
	case errors.Is(err, ErrCorruptRecord):
		log.Warn("corrupt session record, discarding", logger.FieldError(err))
		if derr := m.store.Destroy(ctx, cookieValue); derr != nil {
			log.Warn("failed to remove corrupt session", logger.FieldError(derr))
		}
	default:
		log.Error("session backend unavailable, falling back to ephemeral session", logger.FieldError(err))
	}
	return m.newRecord()
}

// Commit 在请求结束前持久化会话。
//
// 以下任一条件成立时会写回存储：配置了 ResaveAlways；数据被修改过；
// 会话是新建的且配置了 SaveUninitialized。写回成功后返回携带会话 ID 的 cookie 指令。
// 未写回的已有会话不返回指令，客户端继续使用原来的 cookie；
// 未写回的新会话同样不返回指令。
// 固定过期的会话如果在请求期间已经到期，不会写回，返回清除 cookie 的指令。
// ctx 已取消时不做任何写入。
func (m *Manager) Commit(ctx context.Context, rec *Record, wasMutated bool) (*SetCookieDirective, error) {
	if rec == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := m.now()
	mutated := wasMutated || rec.Dirty()
	save := m.resaveAlways || mutated || (rec.IsNew() && m.saveUninitialized)

	if !save {
		if rec.IsNew() || !(m.sliding && m.rolling) {
			return nil, nil
		}
		return m.roll(ctx, rec, now)
	}

	if m.sliding || rec.IsNew() {
		rec.ExpiresAt = now.Add(m.ttl)
	}
	if rec.Expired(now) {
		// 固定过期模式下会话在请求处理期间到期，不再写回，同时让客户端丢弃 cookie
		if err := m.store.Destroy(ctx, rec.ID); err != nil {
			m.log.WithContext(ctx).Warn("failed to remove expired session", logger.FieldError(err))
		}
		return m.cookie.directive("", -1), nil
	}
	if err := m.store.Set(ctx, rec); err != nil {
		m.log.WithContext(ctx).Error("failed to persist session", logger.FieldError(err))
		return nil, asBackendError("set", err)
	}
	rec.markClean()
	return m.cookie.directive(rec.ID, maxAge(rec.ExpiresAt, now)), nil
}

// roll 只续期不重写数据，对应 rolling cookie
func (m *Manager) roll(ctx context.Context, rec *Record, now time.Time) (*SetCookieDirective, error) {
	expiresAt := now.Add(m.ttl)
	if err := m.store.Touch(ctx, rec.ID, expiresAt); err != nil {
		if errors.Is(err, ErrNotFound) {
			// 记录在请求期间被删除或清理，不再下发 cookie
			return nil, nil
		}
		m.log.WithContext(ctx).Error("failed to touch session", logger.FieldError(err))
		return nil, asBackendError("touch", err)
	}
	rec.ExpiresAt = expiresAt
	return m.cookie.directive(rec.ID, maxAge(expiresAt, now)), nil
}

// Destroy 删除会话，并返回让客户端立即删除 cookie 的指令。
// 即使后端删除失败也会返回清除指令
func (m *Manager) Destroy(ctx context.Context, id string) (*SetCookieDirective, error) {
	clear := m.cookie.directive("", -1)
	if id == "" || !ValidID(id) {
		return clear, nil
	}
	if err := m.store.Destroy(ctx, id); err != nil {
		m.log.WithContext(ctx).Error("failed to destroy session", logger.FieldError(err))
		return clear, asBackendError("destroy", err)
	}
	return clear, nil
}

// Regenerate 用新的 ID 替换当前会话并保留数据，旧记录会被删除。
// 通常在登录等权限变化之后调用，防止会话固定攻击
func (m *Manager) Regenerate(ctx context.Context, rec *Record) (*Record, error) {
	next := m.newRecord()
	for k, v := range rec.Values {
		next.Values[k] = v
	}
	next.dirty = true

	if rec.IsNew() {
		return next, nil
	}
	if err := m.store.Destroy(ctx, rec.ID); err != nil {
		m.log.WithContext(ctx).Warn("failed to destroy previous session", logger.FieldError(err))
		return next, asBackendError("destroy", err)
	}
	return next, nil
}

func (m *Manager) newRecord() *Record {
	rec := NewRecord(NewID(), m.now().Add(m.ttl))
	rec.isNew = true
	return rec
}

// asBackendError 确保不会把未分类的后端错误直接交给调用方
func asBackendError(op string, err error) error {
	if errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCorruptRecord) || errors.Is(err, ErrConfiguration) {
		return err
	}
	return ErrUnavailable(op, err)
}

func maxAge(expiresAt, now time.Time) int {
	secs := int(math.Ceil(expiresAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// validCookieName 检查名称是否为 RFC 6265 中的 token
func validCookieName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsFunc(name, func(r rune) bool {
		return r <= ' ' || r >= 0x7f || strings.ContainsRune("()<>@,;:\\\"/[]?={}", r)
	})
}

type recordKey struct{}

// NewContext 把会话放入 context
func NewContext(ctx context.Context, rec *Record) context.Context {
	return context.WithValue(ctx, recordKey{}, rec)
}

// FromContext 从 context 中取出会话
func FromContext(ctx context.Context) (*Record, bool) {
	rec, ok := ctx.Value(recordKey{}).(*Record)
	return rec, ok && rec != nil
}
