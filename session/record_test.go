package session

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDirtyTracking(t *testing.T) {
	rec := NewRecord(NewID(), time.Now().Add(time.Minute))
	assert.False(t, rec.Dirty())

	rec.Delete("missing")
	rec.Clear()
	assert.False(t, rec.Dirty(), "no-op mutations keep the record clean")

	rec.Set("num", 1)
	assert.True(t, rec.Dirty())

	rec.markClean()
	rec.Delete("num")
	assert.True(t, rec.Dirty())
	_, ok := rec.Get("num")
	assert.False(t, ok)
}

func TestRecordTypedAccessors(t *testing.T) {
	rec := NewRecord("id", time.Now().Add(time.Minute))
	rec.Values = map[string]any{
		"i":    3,
		"i64":  int64(4),
		"f":    float64(5),
		"n":    json.Number("6"),
		"s":    "text",
		"b":    true,
		"junk": []int{1},
	}
	assert.Equal(t, 3, rec.Int("i"))
	assert.Equal(t, 4, rec.Int("i64"))
	assert.Equal(t, 5, rec.Int("f"))
	assert.Equal(t, 6, rec.Int("n"))
	assert.Equal(t, 0, rec.Int("junk"))
	assert.Equal(t, "text", rec.String("s"))
	assert.Equal(t, "", rec.String("i"))
	assert.True(t, rec.Bool("b"))

	s, ok := Value[string](rec, "s")
	assert.True(t, ok)
	assert.Equal(t, "text", s)
	_, ok = Value[int](rec, "s")
	assert.False(t, ok)
}

func TestRecordExpiry(t *testing.T) {
	now := time.Now()
	rec := NewRecord("id", now)
	assert.True(t, rec.Expired(now), "expiresAt == now counts as expired")
	assert.False(t, rec.Expired(now.Add(-time.Nanosecond)))
	assert.Equal(t, time.Duration(0), rec.TTL(now.Add(time.Second)))
	assert.Equal(t, time.Second, rec.TTL(now.Add(-time.Second)))
}

func TestRecordClone(t *testing.T) {
	rec := NewRecord("id", time.Now())
	rec.Set("a", "1")
	c := rec.Clone()
	c.Values["a"] = "2"
	assert.Equal(t, "1", rec.String("a"))
	assert.True(t, c.Dirty())
}

func TestCodecRoundTrip(t *testing.T) {
	rec := NewRecord(NewID(), time.Date(2026, 5, 1, 10, 0, 0, 123, time.UTC))
	rec.Set("num", int64(42))
	rec.Set("ratio", 0.5)
	rec.Set("nested", map[string]any{"n": int64(1), "list": []any{int64(2), "x"}})

	blob, err := Marshal(rec)
	require.NoError(t, err)

	got, err := Unmarshal(rec.ID, blob)
	require.NoError(t, err)
	assert.Equal(t, rec.Values, got.Values)
	assert.True(t, rec.ExpiresAt.Equal(got.ExpiresAt))
	assert.False(t, got.Dirty())
}

func TestCodecRejectsCorruptInput(t *testing.T) {
	id := NewID()
	cases := map[string]string{
		"truncated":     `{"id":"` + id + `","expiresAt":"2026-01-01T00:00:00Z","data":{`,
		"wrong id":      `{"id":"other","expiresAt":"2026-01-01T00:00:00Z","data":{}}`,
		"no expiry":     `{"id":"` + id + `","data":{}}`,
		"trailing":      `{"id":"` + id + `","expiresAt":"2026-01-01T00:00:00Z","data":{}} {}`,
		"not an object": `[1,2,3]`,
	}
	for name, in := range cases {
		_, err := Unmarshal(id, []byte(in))
		assert.ErrorIs(t, err, ErrCorruptRecord, name)
	}
}

func TestValuesCodec(t *testing.T) {
	blob, err := MarshalValues(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(blob))

	_, err = UnmarshalValues("id", []byte(`{"num":`))
	assert.ErrorIs(t, err, ErrCorruptRecord)

	values, err := UnmarshalValues("id", []byte(`{"num":7,"f":1.5}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"num": int64(7), "f": 1.5}, values)
}

func TestIDs(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.Len(t, id, 43)
		assert.True(t, ValidID(id))
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("a/b"))
	assert.False(t, ValidID("a.b"))
	assert.False(t, ValidID(strings.Repeat("a", maxIDLength+1)))
}

func TestErrorKinds(t *testing.T) {
	assert.ErrorIs(t, ErrUnavailable("get", assert.AnError), ErrBackendUnavailable)
	assert.Nil(t, ErrUnavailable("get", nil))
	assert.ErrorIs(t, ErrCorrupt("id", assert.AnError), ErrCorruptRecord)
	assert.ErrorIs(t, ErrInvalidConfig("bad %s", "ttl"), ErrConfiguration)
	assert.True(t, IsRecoverable(ErrNotFound))
	assert.False(t, IsRecoverable(ErrConfiguration))
}
