package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLimiter(perMinute, burst int) *Limiter {
	l := New(Config{
		RequestsPerMinute: perMinute,
		BurstSize:         burst,
		CleanupInterval:   time.Hour,
	})
	return l
}

func TestAllow_BurstThenReject(t *testing.T) {
	l := testLimiter(60, 3)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("k") {
			t.Fatalf("request %d rejected inside burst", i)
		}
	}
	if l.Allow("k") {
		t.Error("request beyond burst allowed")
	}
}

func TestAllow_RefillsOverTime(t *testing.T) {
	// 6000/min = 100/sec, so tokens come back quickly.
	l := testLimiter(6000, 2)
	defer l.Stop()

	l.Allow("k")
	l.Allow("k")
	if l.Allow("k") {
		t.Fatal("bucket not empty after burst")
	}

	time.Sleep(50 * time.Millisecond)
	if !l.Allow("k") {
		t.Error("bucket did not refill")
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := testLimiter(60, 1)
	defer l.Stop()

	if !l.Allow("a") {
		t.Fatal("first request for a rejected")
	}
	if !l.Allow("b") {
		t.Error("b throttled by a's bucket")
	}
}

func TestMiddleware_KeysByParticipantAddress(t *testing.T) {
	l := testLimiter(60, 1)
	defer l.Stop()

	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if addr != "" {
			req.Header.Set("X-Participant-Address", addr)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if got := do("0xAAAA"); got != http.StatusOK {
		t.Fatalf("first request status = %d", got)
	}
	if got := do("0xAAAA"); got != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", got)
	}
	// Case-insensitive: same bucket.
	if got := do("0xaaaa"); got != http.StatusTooManyRequests {
		t.Errorf("lowercased address escaped the bucket, status = %d", got)
	}
	// Different participant, fresh bucket.
	if got := do("0xBBBB"); got != http.StatusOK {
		t.Errorf("other participant throttled, status = %d", got)
	}
}
