package session

import (
	"net/http"
	"time"

	"github.com/fyerfyer/fyer-session/logger"
)

const (
	DefaultCookieName = "connect.sid"
	DefaultTTL        = 24 * time.Hour
)

// ManagerOption 配置 Manager
type ManagerOption func(*Manager)

// WithTTL 设置会话有效期
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithCookie 一次性替换全部 cookie 属性
func WithCookie(opts CookieOptions) ManagerOption {
	return func(m *Manager) {
		m.cookie = opts
	}
}

func WithCookieName(name string) ManagerOption {
	return func(m *Manager) {
		m.cookie.Name = name
	}
}

func WithCookiePath(path string) ManagerOption {
	return func(m *Manager) {
		m.cookie.Path = path
	}
}

func WithCookieDomain(domain string) ManagerOption {
	return func(m *Manager) {
		m.cookie.Domain = domain
	}
}

func WithCookieSecure(secure bool) ManagerOption {
	return func(m *Manager) {
		m.cookie.Secure = secure
	}
}

func WithCookieHTTPOnly(httpOnly bool) ManagerOption {
	return func(m *Manager) {
		m.cookie.HTTPOnly = httpOnly
	}
}

func WithSameSite(sameSite http.SameSite) ManagerOption {
	return func(m *Manager) {
		m.cookie.SameSite = sameSite
	}
}

// WithResaveAlways 为 true 时每次提交都写回存储，不论数据是否被修改
func WithResaveAlways(resave bool) ManagerOption {
	return func(m *Manager) {
		m.resaveAlways = resave
	}
}

// WithSaveUninitialized 为 true 时新建的空会话在第一次提交时就写入存储，
// 否则要等到数据第一次被修改
func WithSaveUninitialized(save bool) ManagerOption {
	return func(m *Manager) {
		m.saveUninitialized = save
	}
}

// WithSlidingExpiration 为 true 时每次写回都把过期时间顺延 TTL；
// 为 false 时过期时间在创建时确定，之后不再改变
func WithSlidingExpiration(sliding bool) ManagerOption {
	return func(m *Manager) {
		m.sliding = sliding
	}
}

// WithRolling 为 true 时即使数据没有修改，也会续期并重新下发 cookie。
// 只在滑动过期模式下生效
func WithRolling(rolling bool) ManagerOption {
	return func(m *Manager) {
		m.rolling = rolling
	}
}

func WithLogger(l logger.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = l
	}
}

// WithClock 替换时间来源，测试中使用
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}
