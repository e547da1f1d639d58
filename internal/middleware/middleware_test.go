package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/book-exchange/internal/config"
	"github.com/iliyamo/book-exchange/internal/utils"
)

const secret = "test-secret"

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func token(t *testing.T, id uint64) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, id, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func do(e *echo.Echo, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func whoami(c echo.Context) error {
	id, ok := UserID(c)
	if !ok {
		return c.String(http.StatusOK, "anon")
	}
	return c.String(http.StatusOK, strconv.FormatUint(id, 10))
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret))

	rec := do(e, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing bearer token"}`, rec.Body.String())

	rec = do(e, "/me", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid token"}`, rec.Body.String())

	rec = do(e, "/me", token(t, 42))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())
}

func TestOptionalJWT(t *testing.T) {
	e := echo.New()
	e.GET("/list", whoami, OptionalJWT(secret))

	assert.Equal(t, "anon", do(e, "/list", "").Body.String())
	assert.Equal(t, "anon", do(e, "/list", "Bearer garbage").Body.String())
	assert.Equal(t, "7", do(e, "/list", token(t, 7)).Body.String())
}

func TestTokenBucketBlocksAfterCapacity(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: time.Hour, KeyStrategy: "ip", Prefix: "rl",
	}
	e := echo.New()
	e.Use(NewTokenBucket(cfg, rdb, zaptest.NewLogger(t)))
	e.GET("/x", whoami)

	for i := 0; i < 2; i++ {
		rec := do(e, "/x", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := do(e, "/x", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded, try again later"}`, rec.Body.String())
}

func TestTokenBucketFailsOpen(t *testing.T) {
	mr, rdb := newRedis(t)
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour, TTL: time.Hour}
	e := echo.New()
	e.Use(NewTokenBucket(cfg, rdb, zaptest.NewLogger(t)))
	e.GET("/x", whoami)
	mr.Close()

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(e, "/x", "").Code)
	}
}

func TestRedisCacheIsPerUser(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{http.MethodGet: true},
		TTL: time.Minute, KeyStrategy: "route_query", Prefix: "cache", MaxBodyBytes: 1 << 20,
	}
	calls := 0
	e := echo.New()
	e.GET("/books", func(c echo.Context) error {
		calls++
		return whoami(c)
	}, OptionalJWT(secret), NewRedisCache(cfg, rdb, zaptest.NewLogger(t)))

	rec := do(e, "/books?page=1", token(t, 1))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, "1", rec.Body.String())

	rec = do(e, "/books?page=1", token(t, 1))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, "1", rec.Body.String())
	assert.Equal(t, 1, calls)

	rec = do(e, "/books?page=1", token(t, 2))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, "2", rec.Body.String())

	rec = do(e, "/books?page=2", token(t, 1))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, 3, calls)
}

func TestRedisCacheDoesNotReplayRequestID(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{http.MethodGet: true},
		TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 1 << 20,
	}
	e := echo.New()
	e.Use(echomw.RequestID())
	e.GET("/books", whoami, NewRedisCache(cfg, rdb, zaptest.NewLogger(t)))

	first := do(e, "/books", "")
	require.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := do(e, "/books", "")
	require.Equal(t, "HIT", second.Header().Get("X-Cache"))

	ids := second.Header().Values(echo.HeaderXRequestID)
	require.Len(t, ids, 1)
	assert.NotEqual(t, first.Header().Get(echo.HeaderXRequestID), ids[0])
	assert.Equal(t, "anon", second.Body.String())
}

func TestRedisCacheSkipsErrorsAndLargeBodies(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{http.MethodGet: true},
		TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 4,
	}
	e := echo.New()
	e.Use(NewRedisCache(cfg, rdb, zaptest.NewLogger(t)))
	e.GET("/missing", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "nope"})
	})
	e.GET("/big", func(c echo.Context) error { return c.String(http.StatusOK, "too large") })

	for i := 0; i < 2; i++ {
		assert.Equal(t, "MISS", do(e, "/missing", "").Header().Get("X-Cache"))
		assert.Equal(t, "MISS", do(e, "/big", "").Header().Get("X-Cache"))
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, got)
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 0})
	assert.False(t, ok)
}
