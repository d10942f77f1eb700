package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/generic/store"
	"golang.org/x/time/rate"
)

// =============================================================================
// IDEMPOTENCY
// =============================================================================

const (
	idemPath     = "/api/attendance"
	idemCacheKey = "idemp:/api/attendance:k1"
	idemLockKey  = idemCacheKey + ":lock"
)

type countingHandler struct {
	calls  int
	status int
}

func (c *countingHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	c.calls++
	writeJSON(w, c.status, map[string]string{"id": "rec-1"})
}

func idemRequest(method string) *http.Request {
	req := httptest.NewRequest(method, idemPath, strings.NewReader(`{}`))
	req.Header.Set(IdempotencyKeyHeader, "k1")
	return req
}

func cachedPayload(t *testing.T, status int) string {
	t.Helper()
	b, err := json.Marshal(cachedResponse{
		Status:      status,
		ContentType: "application/json",
		Body:        "{\"id\":\"rec-1\"}\n",
	})
	require.NoError(t, err)
	return string(b)
}

func TestIdempotency_FirstRequestIsCached(t *testing.T) {
	// GIVEN: No cached response for the key
	// WHEN: A POST with Idempotency-Key succeeds
	// THEN: Lock taken, response cached, lock released

	db, mock := redismock.NewClientMock()
	next := &countingHandler{status: http.StatusCreated}
	h := Idempotency(db, time.Hour, nil)(next)

	mock.ExpectGet(idemCacheKey).RedisNil()
	mock.ExpectSetNX(idemLockKey, "locked", idempotencyLockTTL).SetVal(true)
	mock.ExpectSet(idemCacheKey, cachedPayload(t, http.StatusCreated), time.Hour).SetVal("OK")
	mock.ExpectDel(idemLockKey).SetVal(1)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idemRequest(http.MethodPost))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, next.calls)
	assert.Empty(t, rec.Header().Get(ReplayedHeader))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_RepeatIsReplayed(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingHandler{status: http.StatusCreated}
	h := Idempotency(db, time.Hour, nil)(next)

	mock.ExpectGet(idemCacheKey).SetVal(cachedPayload(t, http.StatusCreated))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idemRequest(http.MethodPost))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(ReplayedHeader))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":"rec-1"}`, rec.Body.String())
	assert.Zero(t, next.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_InFlightRepeatIsConflict(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingHandler{status: http.StatusCreated}
	h := Idempotency(db, time.Hour, nil)(next)

	mock.ExpectGet(idemCacheKey).RedisNil()
	mock.ExpectSetNX(idemLockKey, "locked", idempotencyLockTTL).SetVal(false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idemRequest(http.MethodPost))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "PROCESSING", decodeBody[ErrorResponse](t, rec).Code)
	assert.Zero(t, next.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_ServerErrorsAreNotCached(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingHandler{status: http.StatusServiceUnavailable}
	h := Idempotency(db, time.Hour, nil)(next)

	mock.ExpectGet(idemCacheKey).RedisNil()
	mock.ExpectSetNX(idemLockKey, "locked", idempotencyLockTTL).SetVal(true)
	mock.ExpectDel(idemLockKey).SetVal(1)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idemRequest(http.MethodPost))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_RedisDownFailsOpen(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingHandler{status: http.StatusCreated}
	h := Idempotency(db, time.Hour, nil)(next)

	mock.ExpectGet(idemCacheKey).SetErr(errors.New("dial tcp: connection refused"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idemRequest(http.MethodPost))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, next.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_SkipsWithoutKeyOrNonPost(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingHandler{status: http.StatusOK}
	h := Idempotency(db, time.Hour, nil)(next)

	h.ServeHTTP(httptest.NewRecorder(), idemRequest(http.MethodGet))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, idemPath, nil))

	assert.Equal(t, 2, next.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// =============================================================================
// RATE LIMITING
// =============================================================================

func TestRateLimitByIP(t *testing.T) {
	// GIVEN: 1 req/s with a burst of 2
	// WHEN: One client sends three requests at once
	// THEN: The third is rejected, other clients and /healthz are unaffected

	h := NewHandler(store.NewMemory(), Options{})
	router := NewRouter(h, RouterOptions{RateLimit: rate.Limit(1), RateBurst: 2})

	send := func(path, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("/api/employees", "10.0.0.1:5000").Code)
	assert.Equal(t, http.StatusOK, send("/api/employees", "10.0.0.1:5001").Code)
	limited := send("/api/employees", "10.0.0.1:5002")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, send("/api/employees", "10.0.0.2:5000").Code)
	assert.Equal(t, http.StatusOK, send("/healthz", "10.0.0.1:5003").Code)
}

func TestIPRateLimiter_ReusesBucket(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1)
	assert.Same(t, l.Limiter("a"), l.Limiter("a"))
	assert.NotSame(t, l.Limiter("a"), l.Limiter("b"))
}

func TestIPRateLimiter_EvictsIdleClients(t *testing.T) {
	// GIVEN: Two clients, one of which goes quiet
	// WHEN: More than the idle TTL passes and the other client returns
	// THEN: Only the active client's bucket is kept

	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(rate.Limit(1), 1)
	l.now = func() time.Time { return now }
	l.lastSweep = now

	l.Limiter("10.0.0.1")
	quiet := l.Limiter("10.0.0.2")
	assert.Equal(t, 2, l.Len())

	step := rateLimiterIdleTTL * 3 / 5
	now = now.Add(step)
	active := l.Limiter("10.0.0.1")
	assert.Equal(t, 2, l.Len())

	now = now.Add(step)
	assert.Same(t, active, l.Limiter("10.0.0.1"))
	assert.Equal(t, 1, l.Len())

	assert.NotSame(t, quiet, l.Limiter("10.0.0.2"))
}
