package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imei-sim/internal/memstore"
	"imei-sim/internal/quota"
	"imei-sim/internal/seed"
	"imei-sim/internal/service"
	"imei-sim/internal/track"
)

func newMux(t *testing.T, opts Options) *http.ServeMux {
	t.Helper()
	dv, err := seed.New([]byte("api-test-key"))
	require.NoError(t, err)
	now := func() time.Time { return time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC) }
	ledger := quota.NewLedger(memstore.NewCounter(), nil, quota.Options{Now: now})
	tr := service.New(dv, track.NewSynthesizer(track.Options{}), track.NewCache(memstore.NewLRU(16), dv, 0), ledger, service.Options{Now: now})
	return BuildRoutes(tr, opts)
}

func get(mux http.Handler, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestTrackEndpoint(t *testing.T) {
	mux := newMux(t, Options{TrustUserHeader: true})
	user := map[string]string{UserIDHeader: "u-1"}

	rec := get(mux, "/track?imei=490154203237518", user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("cache-control"))
	assert.NotContains(t, rec.Body.String(), "490154203237518")

	var body trackResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "49015420********", body.IMEI)
	assert.Equal(t, "2024-01-01", body.Day)
	assert.Len(t, body.Points, track.PointsPerTrack)
	assert.Equal(t, body.Points[4], body.LastSeen)
	assert.Equal(t, 3, body.Quota.Capacity)
	assert.Equal(t, 2, body.Quota.Remaining)
	assert.Equal(t, "2024-01-02T00:00:00Z", body.Quota.ResetAt)

	get(mux, "/track?imei=490154203237518", user)
	get(mux, "/track?imei=490154203237518", user)
	rec = get(mux, "/track?imei=490154203237518", user)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	var eb errorResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eb))
	assert.Equal(t, "quota_exceeded", eb.Error)
	assert.Equal(t, "2024-01-02T00:00:00Z", eb.ResetAt)

	rec = get(mux, "/quota", user)
	require.Equal(t, http.StatusOK, rec.Code)
	var q quotaResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.Zero(t, q.Remaining)
	assert.Equal(t, 3, q.Consumed)
}

func TestTrackInvalidIdentifier(t *testing.T) {
	mux := newMux(t, Options{})
	rec := get(mux, "/track?imei=12345", map[string]string{UserIDHeader: "u-2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var eb errorResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eb))
	assert.Equal(t, "invalid_identifier", eb.Error)
	assert.NotContains(t, rec.Body.String(), "12345")
}

func TestTrackFallsBackToVisitorIP(t *testing.T) {
	mux := newMux(t, Options{})
	ip := map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get(mux, "/track?imei=356938035643809", ip).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(mux, "/track?imei=356938035643809", ip).Code)
	// 另一来源不受影响
	assert.Equal(t, http.StatusOK, get(mux, "/track?imei=356938035643809", map[string]string{"X-Real-IP": "198.51.100.2"}).Code)
}

func TestMethodNotAllowed(t *testing.T) {
	mux := newMux(t, Options{})
	req := httptest.NewRequest(http.MethodPost, "/track?imei=490154203237518", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz(t *testing.T) {
	ok := func(context.Context) error { return nil }
	bad := func(context.Context) error { return errors.New("unreachable") }

	rec := get(newMux(t, Options{Checks: map[string]Check{"db": ok, "osrm": bad}, Optional: map[string]bool{"osrm": true}}), "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)

	rec = get(newMux(t, Options{Checks: map[string]Check{"db": bad}}), "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"down"`)
}

func TestGetVisitorIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", getVisitorIP(r))
	r.Header.Set("Forwarded", `for="198.51.100.9";proto=https`)
	assert.Equal(t, "198.51.100.9", getVisitorIP(r))
	r.Header.Set("X-Forwarded-For", "203.0.113.1")
	assert.Equal(t, "203.0.113.1", getVisitorIP(r))
	assert.Equal(t, "ip:203.0.113.1", userID(r, true))
	r.Header.Set(UserIDHeader, "alice")
	assert.Equal(t, "alice", userID(r, true))
	assert.Equal(t, "ip:203.0.113.1", userID(r, false))
}

func TestUntrustedUserHeaderCannotResetQuota(t *testing.T) {
	mux := newMux(t, Options{})
	for i := 0; i < 3; i++ {
		hdr := map[string]string{"X-Real-IP": "198.51.100.4", UserIDHeader: fmt.Sprintf("rotated-%d", i)}
		assert.Equal(t, http.StatusOK, get(mux, "/track?imei=353918057294023", hdr).Code)
	}
	// 同一来源换新的 X-User-ID 仍按 IP 计量
	hdr := map[string]string{"X-Real-IP": "198.51.100.4", UserIDHeader: "rotated-3"}
	assert.Equal(t, http.StatusTooManyRequests, get(mux, "/track?imei=353918057294023", hdr).Code)

	rec := get(mux, "/quota", map[string]string{"X-Real-IP": "198.51.100.4", UserIDHeader: "someone-else"})
	require.Equal(t, http.StatusOK, rec.Code)
	var q quotaResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.Equal(t, 3, q.Consumed)
}

func TestTrustedUserHeaderKeysQuota(t *testing.T) {
	mux := newMux(t, Options{TrustUserHeader: true})
	for i := 0; i < 3; i++ {
		hdr := map[string]string{"X-Real-IP": "198.51.100.5", UserIDHeader: "gw-user"}
		assert.Equal(t, http.StatusOK, get(mux, "/track?imei=353918057294023", hdr).Code)
	}
	// 网关已鉴权的不同用户在同一出口 IP 后各自计量
	hdr := map[string]string{"X-Real-IP": "198.51.100.5", UserIDHeader: "gw-other"}
	assert.Equal(t, http.StatusOK, get(mux, "/track?imei=353918057294023", hdr).Code)
}
