package ratelimit

import (
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter()
	l.SetClock(clock.Now)
	return l, clock
}

func TestAdmitRejectsEleventhCallWithinMinute(t *testing.T) {
	l, clock := newTestLimiter()

	for i := 0; i < 10; i++ {
		d := l.Admit("10.0.0.1", 10, 100)
		require.True(t, d.Allowed, "call %d", i+1)
		clock.Advance(time.Second)
	}

	d := l.Admit("10.0.0.1", 10, 100)
	require.False(t, d.Allowed)
	require.Equal(t, ScopeMinute, d.Scope)
	require.Equal(t, "Rate limit exceeded: 10 requests per minute", d.Reason)
	require.Equal(t, time.Minute, d.RetryAfter())
}

func TestAdmitRejectionDoesNotRecord(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < 3; i++ {
		require.True(t, l.Admit("caller", 3, 100).Allowed)
	}
	before := l.Count("caller")
	for i := 0; i < 50; i++ {
		require.False(t, l.Admit("caller", 3, 100).Allowed)
	}
	require.Equal(t, before, l.Count("caller"))
}

func TestAdmitHourScope(t *testing.T) {
	l, clock := newTestLimiter()

	for i := 0; i < 5; i++ {
		require.True(t, l.Admit("caller", 10, 5).Allowed)
		clock.Advance(2 * time.Minute)
	}
	d := l.Admit("caller", 10, 5)
	require.False(t, d.Allowed)
	require.Equal(t, ScopeHour, d.Scope)
	require.Equal(t, "Rate limit exceeded: 5 requests per hour", d.Reason)

	// The first request leaves the hour window after 60 minutes.
	clock.Advance(51 * time.Minute)
	require.True(t, l.Admit("caller", 10, 5).Allowed)
}

func TestAdmitMinuteWindowSlides(t *testing.T) {
	l, clock := newTestLimiter()

	require.True(t, l.Admit("caller", 1, 100).Allowed)
	clock.Advance(30 * time.Second)
	require.False(t, l.Admit("caller", 1, 100).Allowed)
	clock.Advance(31 * time.Second)
	require.True(t, l.Admit("caller", 1, 100).Allowed)
}

func TestAdmitIdentifiersAreIndependent(t *testing.T) {
	l, _ := newTestLimiter()
	require.True(t, l.Admit("a", 1, 1).Allowed)
	require.False(t, l.Admit("a", 1, 1).Allowed)
	require.True(t, l.Admit("b", 1, 1).Allowed)
}

func TestAdmitNeverExceedsLimitsInAnyTrailingWindow(t *testing.T) {
	const perMinute, perHour = 4, 20
	l, clock := newTestLimiter()
	rng := rand.New(rand.NewSource(7))

	var allowed []time.Time
	for i := 0; i < 2000; i++ {
		clock.Advance(time.Duration(rng.Intn(20_000)) * time.Millisecond)
		if l.Admit("caller", perMinute, perHour).Allowed {
			allowed = append(allowed, clock.Now())
		}
	}
	require.NotEmpty(t, allowed)

	for i, end := range allowed {
		minute, hour := 0, 0
		for j := i; j >= 0; j-- {
			age := end.Sub(allowed[j])
			if age < time.Minute {
				minute++
			}
			if age < time.Hour {
				hour++
			}
		}
		require.LessOrEqual(t, minute, perMinute)
		require.LessOrEqual(t, hour, perHour)
	}
}

func TestCompactDropsIdleIdentifiers(t *testing.T) {
	l, clock := newTestLimiter()
	require.True(t, l.Admit("a", 10, 10).Allowed)
	require.True(t, l.Admit("b", 10, 10).Allowed)
	require.Equal(t, 2, l.Identifiers())

	clock.Advance(61 * time.Minute)
	l.compact()
	require.Equal(t, 0, l.Identifiers())
}

func TestMiddlewareRejectsPerClient(t *testing.T) {
	l, _ := newTestLimiter()
	var rejected []Decision
	h := Middleware(l, 2, 100, func(w http.ResponseWriter, _ *http.Request, d Decision) {
		rejected = append(rejected, d)
		w.WriteHeader(http.StatusTooManyRequests)
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/start_session", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do("192.0.2.1:1111"))
	require.Equal(t, http.StatusOK, do("192.0.2.1:2222"))
	require.Equal(t, http.StatusTooManyRequests, do("192.0.2.1:3333"))
	require.Equal(t, http.StatusOK, do("192.0.2.2:1111"))
	require.Len(t, rejected, 1)
	require.Equal(t, ScopeMinute, rejected[0].Scope)
}

func TestMiddlewareRoutesShareCallerWindow(t *testing.T) {
	l, _ := newTestLimiter()
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux := http.NewServeMux()
	mux.Handle("/start_session", Middleware(l, 10, 100, nil)(ok))
	mux.Handle("/process_audio", Middleware(l, 10, 100, nil)(ok))

	do := func(path, remote string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, do("/process_audio", "10.0.0.1:4000"), "call %d", i+1)
	}
	require.Equal(t, http.StatusTooManyRequests, do("/start_session", "10.0.0.1:4001"))
	require.Equal(t, http.StatusOK, do("/start_session", "10.0.0.2:4000"))
	require.Equal(t, 2, l.Identifiers())
}
