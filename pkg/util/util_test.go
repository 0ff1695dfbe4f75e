package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"timeline-service/internal/testutil"
)

func TestDeepMerge(t *testing.T) {
	dst := map[string]interface{}{
		"owner": "ops",
		"links": map[string]interface{}{"doc": "a", "ticket": "T-1"},
	}
	src := map[string]interface{}{
		"links": map[string]interface{}{"ticket": "T-2"},
		"tags":  []interface{}{"x"},
	}

	got := DeepMerge(dst, src)
	assert.Equal(t, map[string]interface{}{
		"owner": "ops",
		"links": map[string]interface{}{"doc": "a", "ticket": "T-2"},
		"tags":  []interface{}{"x"},
	}, got)
	assert.Equal(t, "T-1", dst["links"].(map[string]interface{})["ticket"], "inputs untouched")

	// a scalar replaces a nested map outright
	got = DeepMerge(dst, map[string]interface{}{"links": nil})
	assert.Nil(t, got["links"])
}

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(42, "secret", time.Minute)
	require.NoError(t, err)

	userID, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, 42, userID)

	_, err = ParseJWT(token, "other")
	assert.Error(t, err)

	expired, err := GenerateJWT(42, "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "secret")
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	cases := map[string]string{
		"":           "",
		"Bearer abc": "abc",
		"bearer abc": "abc",
		"Basic abc":  "",
		"Bearer a b": "",
		"Bearerabc":  "",
	}
	for header, want := range cases {
		r, _ := http.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, ExtractToken(r), "header %q", header)
	}
}

type netTimeout struct{}

func (netTimeout) Error() string   { return "i/o timeout" }
func (netTimeout) Timeout() bool   { return true }
func (netTimeout) Temporary() bool { return true }

func TestIsRetryableError(t *testing.T) {
	var syntaxErr error
	{
		var v map[string]any
		syntaxErr = json.Unmarshal([]byte("{"), &v)
	}

	cases := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"nil", nil, false, ""},
		{"json", fmt.Errorf("decode: %w", syntaxErr), false, "json_decode_error"},
		{"no rows", pgx.ErrNoRows, false, "not_found"},
		{"serialization", &pgconn.PgError{Code: "40001"}, true, "db_conflict"},
		{"unique", &pgconn.PgError{Code: "23505"}, false, "duplicate_key"},
		{"exclusion", &pgconn.PgError{Code: "23P01"}, false, "duplicate_key"},
		{"other pg", &pgconn.PgError{Code: "22001"}, false, "db_error"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"net timeout", fmt.Errorf("dial: %w", netTimeout{}), true, "network_timeout"},
		{"refused", errors.New("dial tcp: connection refused"), true, "connection_error"},
		{"unknown", errors.New("boom"), false, "unknown_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			retryable, errType := IsRetryableError(tc.err)
			assert.Equal(t, tc.retryable, retryable)
			assert.Equal(t, tc.errType, errType)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(1, 5, true))
	assert.True(t, ShouldRetry(5, 5, true))
	assert.False(t, ShouldRetry(6, 5, true))
	assert.False(t, ShouldRetry(1, 5, false))
}

func TestDeduper(t *testing.T) {
	rdb := testutil.NewFakeRedis()
	d := NewDeduper(rdb, time.Minute, zap.NewNop())
	ctx := context.Background()

	assert.True(t, d.AcquireOnce(ctx, "h", "ev-1"))
	assert.False(t, d.AcquireOnce(ctx, "h", "ev-1"))
	assert.True(t, d.AcquireOnce(ctx, "other", "ev-1"))
	assert.Equal(t, time.Minute, rdb.ExpiryOf("dedup:h:ev-1"))

	d.Release(ctx, "h", "ev-1")
	assert.True(t, d.AcquireOnce(ctx, "h", "ev-1"))

	// fail open when Redis is unavailable
	rdb.Err = errors.New("redis down")
	assert.True(t, d.AcquireOnce(ctx, "h", "ev-1"))
}

func TestRetryCounter(t *testing.T) {
	rdb := testutil.NewFakeRedis()
	rc := NewRetryCounter(rdb, time.Hour)
	ctx := context.Background()
	key := FormatRetryKey("h", "ev-1")
	assert.Equal(t, "retry:h:ev-1", key)

	n, err := rc.Get(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, n)

	for want := int64(1); want <= 3; want++ {
		n, err = rc.IncrementAndGet(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.Equal(t, time.Hour, rdb.ExpiryOf(key))

	n, err = rc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, rc.Reset(ctx, key))
	n, err = rc.Get(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, n)
}
