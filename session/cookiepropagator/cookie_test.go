package cookiepropagator

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fyerfyer/fyer-session/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func directive(value string, maxAge int) *session.SetCookieDirective {
	return &session.SetCookieDirective{
		Name:          "connect.sid",
		Value:         value,
		Path:          "/",
		HTTPOnly:      true,
		SameSite:      http.SameSiteLaxMode,
		MaxAgeSeconds: maxAge,
	}
}

func TestExtractPlain(t *testing.T) {
	p := NewCookiePropagator("connect.sid")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := p.Extract(req)
	assert.ErrorIs(t, err, http.ErrNoCookie)

	req.AddCookie(&http.Cookie{Name: "connect.sid", Value: "abc"})
	id, err := p.Extract(req)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestInsertWritesDirective(t *testing.T) {
	p := NewCookiePropagator("connect.sid", WithClock(func() time.Time { return fixedNow }))
	resp := httptest.NewRecorder()
	require.NoError(t, p.Insert(directive("abc", 60), resp))

	cookies := resp.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "connect.sid", c.Name)
	assert.Equal(t, "abc", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 60, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.True(t, fixedNow.Add(time.Minute).Equal(c.Expires))

	// nil 指令不写任何头
	resp = httptest.NewRecorder()
	require.NoError(t, p.Insert(nil, resp))
	assert.Empty(t, resp.Header().Values("Set-Cookie"))
}

func TestInsertClearingDirective(t *testing.T) {
	p := NewCookiePropagator("connect.sid", WithSecrets("k1"))
	resp := httptest.NewRecorder()
	require.NoError(t, p.Insert(directive("", -1), resp))

	header := resp.Header().Get("Set-Cookie")
	assert.Contains(t, header, "connect.sid=;")
	assert.Contains(t, header, "Max-Age=0")
	assert.Contains(t, header, "Expires=Thu, 01 Jan 1970 00:00:00 GMT")
}

func TestSignedRoundTrip(t *testing.T) {
	p := NewCookiePropagator("connect.sid", WithSecrets("k1"))
	id := session.NewID()

	resp := httptest.NewRecorder()
	require.NoError(t, p.Insert(directive(id, 60), resp))
	c := resp.Result().Cookies()[0]
	assert.Equal(t, p.Sign(id), c.Value)
	assert.NotEqual(t, id, c.Value)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	got, err := p.Extract(req)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestUnsign(t *testing.T) {
	p := NewCookiePropagator("connect.sid", WithSecrets("k1"))
	signed := p.Sign("abc")
	last := "A"
	if signed[len(signed)-1] == 'A' {
		last = "B"
	}

	testCases := []struct {
		name    string
		value   string
		wantErr error
	}{
		{name: "valid", value: signed},
		{name: "unsigned", value: "abc", wantErr: ErrInvalidFormat},
		{name: "missing signature", value: "s:abc.", wantErr: ErrInvalidFormat},
		{name: "missing id", value: "s:.sig", wantErr: ErrInvalidFormat},
		{name: "tampered id", value: "s:abd" + signed[len("s:abc"):], wantErr: ErrInvalidSignature},
		{name: "tampered signature", value: signed[:len(signed)-1] + last, wantErr: ErrInvalidSignature},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := p.Unsign(tc.value)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "abc", id)
		})
	}
}

func TestSecretRotation(t *testing.T) {
	old := NewCookiePropagator("connect.sid", WithSecrets("old"))
	rotated := NewCookiePropagator("connect.sid", WithSecrets("new", "old"))
	other := NewCookiePropagator("connect.sid", WithSecrets("new"))

	signed := old.Sign("abc")
	id, err := rotated.Unsign(signed)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	_, err = other.Unsign(signed)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// 新签名使用第一个密钥
	assert.Equal(t, other.Sign("abc"), rotated.Sign("abc"))
}

func TestEmptySecretsDisableSigning(t *testing.T) {
	p := NewCookiePropagator("connect.sid", WithSecrets("", ""))
	assert.False(t, p.Signed())
}
