package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

type fakeMirror struct {
	fail  int // number of times Upsert fails before succeeding
	calls int
	last  models.DriverLocation
}

func (f *fakeMirror) Upsert(ctx context.Context, loc models.DriverLocation) error {
	f.calls++
	f.last = loc
	if f.calls <= f.fail {
		return errors.New("upsert fail")
	}
	return nil
}

func TestUpsertWithRetrySucceedsAfterRetries(t *testing.T) {
	f := &fakeMirror{fail: 2}
	loc := models.DriverLocation{DriverID: "d1", Loc: models.Coord{Lat: 43.2, Lon: 76.9}, Online: true}
	start := time.Now()
	if err := upsertWithRetry(context.Background(), f, loc, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if f.calls != 3 {
		t.Fatalf("calls = %d", f.calls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("expected at least one backoff")
	}
	if f.last.DriverID != "d1" {
		t.Fatalf("last = %+v", f.last)
	}
}

func TestUpsertWithRetryFailsWhenExhausted(t *testing.T) {
	f := &fakeMirror{fail: 5}
	loc := models.DriverLocation{DriverID: "d1", Loc: models.Coord{Lat: 1, Lon: 2}}
	if err := upsertWithRetry(context.Background(), f, loc, 3, 5*time.Millisecond); err == nil {
		t.Fatal("expected error after retries")
	}
	if f.calls != 3 {
		t.Fatalf("calls = %d", f.calls)
	}
}
