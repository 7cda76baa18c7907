package ratelimit

import (
	"testing"
	"time"
)

func TestNilLimiterAllowsAll(t *testing.T) {
	var p *PerUser
	now := time.Now()
	for i := 0; i < 100; i++ {
		if !p.Allow("alice", now) {
			t.Fatal("nil limiter denied a request")
		}
	}
	p.Forget("alice")
}

func TestInvalidArgsReturnNil(t *testing.T) {
	if NewPerUser(0, 10) != nil {
		t.Fatal("expected nil for zero rps")
	}
	if NewPerUser(5, 0) != nil {
		t.Fatal("expected nil for zero burst")
	}
}

func TestBurstThenDeny(t *testing.T) {
	p := NewPerUser(1, 3)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !p.Allow("alice", now) {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	if p.Allow("alice", now) {
		t.Fatal("request past burst allowed")
	}

	// Tokens refill with time.
	if !p.Allow("alice", now.Add(2*time.Second)) {
		t.Fatal("request denied after refill window")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	p := NewPerUser(1, 1)
	now := time.Now()

	if !p.Allow("alice", now) {
		t.Fatal("alice denied")
	}
	if p.Allow("alice", now) {
		t.Fatal("alice allowed past burst")
	}
	if !p.Allow("bob", now) {
		t.Fatal("bob denied by alice's bucket")
	}
}

func TestForgetResetsBucket(t *testing.T) {
	p := NewPerUser(1, 1)
	now := time.Now()

	p.Allow("alice", now)
	if p.Allow("alice", now) {
		t.Fatal("allowed past burst")
	}
	p.Forget("alice")
	if !p.Allow("alice", now) {
		t.Fatal("denied after Forget")
	}
}
