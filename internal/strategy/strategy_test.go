package strategy

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func TestFirstSuccessReturnsFirstWin(t *testing.T) {
	called := []string{}
	out, err := FirstSuccess(context.Background(),
		func(ctx context.Context) (string, error) {
			called = append(called, "a")
			return "", errTransient
		},
		func(ctx context.Context) (string, error) {
			called = append(called, "b")
			return "win", nil
		},
		func(ctx context.Context) (string, error) {
			called = append(called, "c")
			return "never", nil
		},
	)
	if err != nil {
		t.Fatalf("FirstSuccess returned error: %v", err)
	}
	if out != "win" {
		t.Fatalf("out = %q, want %q", out, "win")
	}
	if len(called) != 2 {
		t.Fatalf("called = %v, want two strategies executed", called)
	}
}

func TestFirstSuccessReturnsLastError(t *testing.T) {
	wantErr := errors.New("final")
	_, err := FirstSuccess(context.Background(),
		func(ctx context.Context) (int, error) { return 0, errTransient },
		func(ctx context.Context) (int, error) { return 0, wantErr },
	)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestDoRetriesWithIncreasingDelays(t *testing.T) {
	var delays []time.Duration
	attempts := 0
	out, err := Do(context.Background(), Policy{
		MaxRetries: 5,
		Backoff:    Exponential(3*time.Second, 30*time.Second),
		Retryable:  func(err error) bool { return errors.Is(err, errTransient) },
		Sleep: func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}, func(ctx context.Context) (string, error) {
		attempts++
		if attempts <= 2 {
			return "", errTransient
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if out != "ok" {
		t.Fatalf("out = %q, want %q", out, "ok")
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3 (two retries)", attempts)
	}
	if len(delays) != 2 {
		t.Fatalf("recorded %d delays, want 2", len(delays))
	}
	if delays[0] != 3*time.Second || delays[1] != 6*time.Second {
		t.Fatalf("delays = %v, want [3s 6s]", delays)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("401 unauthorized")
	attempts := 0
	_, err := Do(context.Background(), Policy{
		MaxRetries: 5,
		Backoff:    Exponential(time.Second, 0),
		Retryable:  func(err error) bool { return errors.Is(err, errTransient) },
		Sleep:      func(ctx context.Context, d time.Duration) error { return nil },
	}, func(ctx context.Context) (string, error) {
		attempts++
		return "", permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want %v", err, permanent)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (zero retries)", attempts)
	}
}

func TestDoWarmUpSleepsBeforeFirstAttempt(t *testing.T) {
	var delays []time.Duration
	attempts := 0
	_, err := Do(context.Background(), Policy{
		MaxRetries: 0,
		WarmUp:     time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			if attempts != 0 {
				t.Fatal("warm-up slept after the first attempt")
			}
			delays = append(delays, d)
			return nil
		},
	}, func(ctx context.Context) (string, error) {
		attempts++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if len(delays) != 1 || delays[0] != time.Second {
		t.Fatalf("delays = %v, want [1s]", delays)
	}
}

func TestExponentialCaps(t *testing.T) {
	backoff := Exponential(3*time.Second, 30*time.Second)
	want := []time.Duration{3 * time.Second, 6 * time.Second, 12 * time.Second, 24 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, expect := range want {
		if got := backoff(i + 1); got != expect {
			t.Fatalf("backoff(%d) = %v, want %v", i+1, got, expect)
		}
	}
}
