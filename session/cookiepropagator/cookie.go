// Package cookiepropagator 负责会话 ID 在 HTTP 请求和响应之间的传递
package cookiepropagator

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fyerfyer/fyer-session/session"
)

const signedPrefix = "s:"

var (
	// ErrInvalidFormat cookie 值不是签名格式
	ErrInvalidFormat = errors.New("cookiepropagator: invalid signed value format")
	// ErrInvalidSignature 签名校验失败
	ErrInvalidSignature = errors.New("cookiepropagator: invalid signature")
)

// CookiePropagator 从请求中读取会话 cookie，并把 SetCookieDirective 写入响应。
// 配置了 secret 时 cookie 值的格式为 s:<id>.<hmac>
type CookiePropagator struct {
	cookieName string
	secrets    [][]byte
	now        func() time.Time
}

// CookiePropagatorOption 配置 CookiePropagator
type CookiePropagatorOption func(*CookiePropagator)

// WithSecrets 设置签名密钥。第一个用于签名，全部用于校验，便于轮换密钥
func WithSecrets(secrets ...string) CookiePropagatorOption {
	return func(p *CookiePropagator) {
		p.secrets = p.secrets[:0]
		for _, s := range secrets {
			if s != "" {
				p.secrets = append(p.secrets, []byte(s))
			}
		}
	}
}

func WithClock(now func() time.Time) CookiePropagatorOption {
	return func(p *CookiePropagator) {
		p.now = now
	}
}

// NewCookiePropagator 创建 CookiePropagator，cookieName 需要与 Manager 的配置一致
func NewCookiePropagator(cookieName string, opts ...CookiePropagatorOption) *CookiePropagator {
	p := &CookiePropagator{
		cookieName: cookieName,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Signed 返回是否启用了签名
func (p *CookiePropagator) Signed() bool {
	return len(p.secrets) > 0
}

// Extract 从请求中提取会话 ID。没有 cookie 时返回 http.ErrNoCookie
func (p *CookiePropagator) Extract(req *http.Request) (string, error) {
	cookie, err := req.Cookie(p.cookieName)
	if err != nil {
		return "", err
	}
	if !p.Signed() {
		return cookie.Value, nil
	}
	return p.Unsign(cookie.Value)
}

// Insert 把指令写成 Set-Cookie 头
func (p *CookiePropagator) Insert(d *session.SetCookieDirective, resp http.ResponseWriter) error {
	if d == nil {
		return nil
	}
	http.SetCookie(resp, p.Cookie(d))
	return nil
}

// Cookie 把指令转换为 http.Cookie，清除指令同时设置 Expires 为 Unix 零点
func (p *CookiePropagator) Cookie(d *session.SetCookieDirective) *http.Cookie {
	value := d.Value
	if value != "" && p.Signed() {
		value = p.Sign(value)
	}
	return &http.Cookie{
		Name:     d.Name,
		Value:    value,
		Path:     d.Path,
		Domain:   d.Domain,
		MaxAge:   d.MaxAgeSeconds,
		Expires:  d.Expires(p.now()),
		Secure:   d.Secure,
		HttpOnly: d.HTTPOnly,
		SameSite: d.SameSite,
	}
}

// Sign 使用第一个密钥对 id 签名
func (p *CookiePropagator) Sign(id string) string {
	return signedPrefix + id + "." + mac(p.secrets[0], id)
}

// Unsign 校验签名并返回原始 id，任一密钥校验通过即可
func (p *CookiePropagator) Unsign(value string) (string, error) {
	if !strings.HasPrefix(value, signedPrefix) {
		return "", ErrInvalidFormat
	}
	body := strings.TrimPrefix(value, signedPrefix)
	dot := strings.LastIndexByte(body, '.')
	if dot <= 0 || dot == len(body)-1 {
		return "", ErrInvalidFormat
	}
	id, sig := body[:dot], body[dot+1:]
	for _, secret := range p.secrets {
		if subtle.ConstantTimeCompare([]byte(sig), []byte(mac(secret, id))) == 1 {
			return id, nil
		}
	}
	return "", ErrInvalidSignature
}

func mac(secret []byte, value string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
