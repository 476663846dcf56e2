package middleware

import (
	"testing"
)

func TestRateLimiterAllowsBurstThenBlocks(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	if !rl.Allow("user-1") {
		t.Fatal("first request should pass")
	}
	if !rl.Allow("user-1") {
		t.Fatal("second request should pass within burst")
	}
	if rl.Allow("user-1") {
		t.Fatal("third request should be limited")
	}
}

func TestRateLimiterIsolatesKeys(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	if !rl.Allow("user-1") {
		t.Fatal("user-1 should pass")
	}
	if rl.Allow("user-1") {
		t.Fatal("user-1 should be limited")
	}
	if !rl.Allow("user-2") {
		t.Fatal("user-2 must not be affected by user-1's limit")
	}
}
