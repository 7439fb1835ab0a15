package session

import (
	"net/http"
	"time"
)

// SetCookieDirective 描述响应中需要设置的会话 cookie，
// 由 HTTP 层负责序列化为 Set-Cookie 头
type SetCookieDirective struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
	// MaxAgeSeconds 小于 0 表示立即删除 cookie
	MaxAgeSeconds int
}

// Clears 表示该指令用于删除客户端 cookie
func (d *SetCookieDirective) Clears() bool {
	return d.MaxAgeSeconds < 0
}

// Expires 返回与 MaxAgeSeconds 对应的绝对过期时间，
// 供不支持 Max-Age 的旧客户端使用
func (d *SetCookieDirective) Expires(now time.Time) time.Time {
	if d.Clears() {
		return time.Unix(0, 0)
	}
	return now.Add(time.Duration(d.MaxAgeSeconds) * time.Second)
}

// CookieOptions 是会话 cookie 的属性
type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
}

func defaultCookieOptions() CookieOptions {
	return CookieOptions{
		Name:     DefaultCookieName,
		Path:     "/",
		HTTPOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (o CookieOptions) directive(value string, maxAge int) *SetCookieDirective {
	return &SetCookieDirective{
		Name:          o.Name,
		Value:         value,
		Path:          o.Path,
		Domain:        o.Domain,
		HTTPOnly:      o.HTTPOnly,
		Secure:        o.Secure,
		SameSite:      o.SameSite,
		MaxAgeSeconds: maxAge,
	}
}
