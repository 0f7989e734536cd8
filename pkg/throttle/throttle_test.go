package throttle

import (
	"net/http"
	"net/url"
	"testing"
	"time"
)

func TestKeyForURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"host and first segment", "https://api.example.com/users/123", "api.example.com/users"},
		{"single segment", "https://api.example.com/users", "api.example.com/users"},
		{"root path", "https://api.example.com/", "api.example.com"},
		{"no path", "https://api.example.com", "api.example.com"},
		{"lowercased", "https://API.Example.COM/Users/123", "api.example.com/users"},
		{"port kept", "http://localhost:8080/items/1", "localhost:8080/items"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.url)
			if err != nil {
				t.Fatalf("parse %q: %v", tt.url, err)
			}
			if got := KeyForURL(u); got != tt.want {
				t.Errorf("KeyForURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestDecideZeroRatePassesThrough(t *testing.T) {
	e := NewEngine(Config{Rate: 0})
	for i := 0; i < 50; i++ {
		d := e.Decide(http.MethodGet, "api.example.com/users")
		if d.Classification != PassThrough {
			t.Fatalf("call %d: got %s, want %s", i, d.Classification, PassThrough)
		}
	}
	if n := e.ActiveRecords(); n != 0 {
		t.Errorf("ActiveRecords() = %d, want 0", n)
	}
}

func TestDecideThrottledInsideWindow(t *testing.T) {
	// A write pool of only 429 makes the first failure deterministic.
	e := NewEngine(Config{
		Rate:             100,
		RetryAfter:       time.Hour,
		WriteStatusCodes: []int{429},
	})

	d := e.Decide(http.MethodPost, "api.example.com/users")
	if d.Classification != RandomFail || d.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("first call: got %s/%d, want %s/429", d.Classification, d.StatusCode, RandomFail)
	}
	if d.RetryAfter != time.Hour {
		t.Errorf("RetryAfter = %v, want %v", d.RetryAfter, time.Hour)
	}

	// Calls inside the window are throttled regardless of method.
	d = e.Decide(http.MethodGet, "api.example.com/users")
	if d.Classification != Throttled || d.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second call: got %s/%d, want %s/429", d.Classification, d.StatusCode, Throttled)
	}
	if n := e.ActiveRecords(); n != 1 {
		t.Errorf("ActiveRecords() = %d, want 1", n)
	}
}

func TestDecideRepeatCallExtendsWindow(t *testing.T) {
	e := NewEngine(Config{
		Rate:             100,
		RetryAfter:       50 * time.Millisecond,
		WriteStatusCodes: []int{429},
	})

	if d := e.Decide(http.MethodPost, "api.example.com/users"); d.Classification != RandomFail {
		t.Fatalf("first call: got %s, want %s", d.Classification, RandomFail)
	}

	// Keep hammering before the window elapses; each hit pushes it out.
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		if d := e.Decide(http.MethodPost, "api.example.com/users"); d.Classification != Throttled {
			t.Fatalf("hammer %d: got %s, want %s", i, d.Classification, Throttled)
		}
	}
}

func TestDecideFreePassAfterWindow(t *testing.T) {
	// Even at a 100% failure rate, the first call after the window elapses
	// passes through and clears the record.
	e := NewEngine(Config{
		Rate:             100,
		RetryAfter:       30 * time.Millisecond,
		WriteStatusCodes: []int{429},
	})

	if d := e.Decide(http.MethodPost, "api.example.com/users"); d.Classification != RandomFail {
		t.Fatalf("first call: got %s, want %s", d.Classification, RandomFail)
	}

	time.Sleep(60 * time.Millisecond)

	d := e.Decide(http.MethodPost, "api.example.com/users")
	if d.Classification != PassThrough {
		t.Fatalf("post-window call: got %s, want %s", d.Classification, PassThrough)
	}
	if n := e.ActiveRecords(); n != 0 {
		t.Errorf("ActiveRecords() = %d, want 0 after free pass", n)
	}

	// The dice roll applies again on the call after the free pass.
	if d := e.Decide(http.MethodPost, "api.example.com/users"); d.Classification != RandomFail {
		t.Errorf("call after free pass: got %s, want %s", d.Classification, RandomFail)
	}
}

func TestDecideKeysAreIndependent(t *testing.T) {
	e := NewEngine(Config{
		Rate:             100,
		RetryAfter:       time.Hour,
		WriteStatusCodes: []int{429},
	})

	if d := e.Decide(http.MethodPost, "api.example.com/users"); d.Classification != RandomFail {
		t.Fatalf("users: got %s, want %s", d.Classification, RandomFail)
	}
	// A different workload on the same host has its own accounting.
	if d := e.Decide(http.MethodPost, "api.example.com/groups"); d.Classification != RandomFail {
		t.Fatalf("groups: got %s, want %s", d.Classification, RandomFail)
	}
	if n := e.ActiveRecords(); n != 2 {
		t.Errorf("ActiveRecords() = %d, want 2", n)
	}
}

func TestDecideStatusPools(t *testing.T) {
	readPool := map[int]bool{418: true}
	writePool := map[int]bool{599: true}
	e := NewEngine(Config{
		Rate:             100,
		ReadStatusCodes:  []int{418},
		WriteStatusCodes: []int{599},
	})

	for i := 0; i < 20; i++ {
		if d := e.Decide(http.MethodGet, "k"); !readPool[d.StatusCode] {
			t.Fatalf("GET draw %d: status %d not in read pool", i, d.StatusCode)
		}
		if d := e.Decide(http.MethodPost, "w"); !writePool[d.StatusCode] {
			t.Fatalf("POST draw %d: status %d not in write pool", i, d.StatusCode)
		}
	}
}

func TestDecideNon429FailureLeavesNoRecord(t *testing.T) {
	e := NewEngine(Config{
		Rate:             100,
		WriteStatusCodes: []int{500},
	})

	d := e.Decide(http.MethodPost, "api.example.com/users")
	if d.Classification != RandomFail || d.StatusCode != 500 {
		t.Fatalf("got %s/%d, want %s/500", d.Classification, d.StatusCode, RandomFail)
	}
	if d.RetryAfter != 0 {
		t.Errorf("RetryAfter = %v, want 0 for non-429 failure", d.RetryAfter)
	}
	if n := e.ActiveRecords(); n != 0 {
		t.Errorf("ActiveRecords() = %d, want 0", n)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Rate: 150}.withDefaults()
	if cfg.Rate != 100 {
		t.Errorf("Rate = %d, want clamped to 100", cfg.Rate)
	}
	if cfg.RetryAfter != DefaultRetryAfter {
		t.Errorf("RetryAfter = %v, want %v", cfg.RetryAfter, DefaultRetryAfter)
	}
	if len(cfg.ReadStatusCodes) == 0 || len(cfg.WriteStatusCodes) == 0 {
		t.Error("default status pools not applied")
	}

	cfg = Config{Rate: -5}.withDefaults()
	if cfg.Rate != 0 {
		t.Errorf("Rate = %d, want clamped to 0", cfg.Rate)
	}
}

func TestReset(t *testing.T) {
	e := NewEngine(Config{Rate: 100, RetryAfter: time.Hour, WriteStatusCodes: []int{429}})
	e.Decide(http.MethodPost, "a")
	e.Decide(http.MethodPost, "b")
	if n := e.ActiveRecords(); n != 2 {
		t.Fatalf("ActiveRecords() = %d, want 2", n)
	}
	e.Reset()
	if n := e.ActiveRecords(); n != 0 {
		t.Errorf("ActiveRecords() = %d, want 0 after Reset", n)
	}
}
