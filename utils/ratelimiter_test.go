package utils

import (
	"testing"
	"time"
)

func TestRateLimiterSpacesSameHost(t *testing.T) {
	rl := NewRateLimiter(50)

	rl.Wait("b918666.yclients.com")
	start := time.Now()
	rl.Wait("b918666.yclients.com")

	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("second call waited %v, want at least ~50ms", elapsed)
	}
}

func TestRateLimiterHostsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(500)

	rl.Wait("b918666.yclients.com")
	start := time.Now()
	rl.Wait("b861100.yclients.com")

	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("different host waited %v, want no delay", elapsed)
	}
}

func TestRateLimiterZeroDelay(t *testing.T) {
	rl := NewRateLimiter(0)

	start := time.Now()
	rl.Wait("b918666.yclients.com")
	rl.Wait("b918666.yclients.com")

	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("zero-delay limiter waited %v", elapsed)
	}
}
