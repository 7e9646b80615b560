package client

import (
	"testing"
	"time"
)

func TestRetryPolicyDoublesFromBase(t *testing.T) {
	p := NewRetryPolicy()
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	for i, w := range want {
		d, ok := p.NextDelay()
		if !ok {
			t.Fatalf("attempt %d: budget exhausted early", i+1)
		}
		if d != w {
			t.Errorf("attempt %d: delay = %v, want %v", i+1, d, w)
		}
	}
	if _, ok := p.NextDelay(); ok {
		t.Error("sixth attempt allowed, budget should be 5")
	}
	if _, ok := p.NextDelay(); ok {
		t.Error("budget must stay exhausted")
	}
}

func TestRetryPolicyCap(t *testing.T) {
	p := RetryPolicy{Base: 10 * time.Second, Cap: 30 * time.Second, MaxAttempts: 5}
	want := []time.Duration{
		10 * time.Second,
		20 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		d, ok := p.NextDelay()
		if !ok {
			t.Fatalf("attempt %d: budget exhausted early", i+1)
		}
		if d != w {
			t.Errorf("attempt %d: delay = %v, want %v", i+1, d, w)
		}
	}
}

func TestRetryPolicyReset(t *testing.T) {
	p := NewRetryPolicy()
	p.NextDelay()
	p.NextDelay()
	if p.Attempt() != 2 {
		t.Fatalf("attempt = %d, want 2", p.Attempt())
	}
	p.Reset()
	if p.Attempt() != 0 {
		t.Errorf("attempt after reset = %d, want 0", p.Attempt())
	}
	if d, ok := p.NextDelay(); !ok || d != DefaultBackoffBase {
		t.Errorf("first delay after reset = %v %v, want %v true", d, ok, DefaultBackoffBase)
	}
}
