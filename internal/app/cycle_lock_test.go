package app

import (
	"context"
	"testing"
	"time"
)

func TestCycleLock_NilClientAlwaysAcquires(t *testing.T) {
	lock := NewCycleLock(nil, "test:lock", time.Minute)

	token, acquired, err := lock.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if !acquired {
		t.Fatal("expected a lock without a redis client to always acquire")
	}
	if err := lock.Release(context.Background(), token); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
}

func TestCycleLock_NilLockIsSafe(t *testing.T) {
	var lock *CycleLock

	_, acquired, err := lock.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if !acquired {
		t.Fatal("expected a nil lock to always acquire")
	}
	if err := lock.Release(context.Background(), "anything"); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
}

func TestNewCycleLock_Defaults(t *testing.T) {
	lock := NewCycleLock(nil, "   ", 0)
	if lock.key != "ecobloom:settlement:cycle_lock" {
		t.Fatalf("expected default lock key, got %q", lock.key)
	}
	if lock.ttl != 5*time.Minute {
		t.Fatalf("expected default ttl of 5m, got %v", lock.ttl)
	}
}
