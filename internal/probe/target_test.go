package probe

import "testing"

func TestNewSpecDefaults(t *testing.T) {
	s := NewSpec(Spec{})
	if s.Timeout.Seconds() != 2 {
		t.Fatalf("expected default timeout 2s, got %v", s.Timeout)
	}
	if s.Interval.Seconds() != 5 {
		t.Fatalf("expected default interval 5s, got %v", s.Interval)
	}
	if s.Window != 8 {
		t.Fatalf("expected default window 8, got %d", s.Window)
	}
	if s.Threshold != 3 {
		t.Fatalf("expected default threshold 3, got %d", s.Threshold)
	}
	if s.Initial != s.Threshold-1 {
		t.Fatalf("expected default initial = threshold-1 = %d, got %d", s.Threshold-1, s.Initial)
	}
	if s.ExpectedStatus != 200 {
		t.Fatalf("expected default expected status 200, got %d", s.ExpectedStatus)
	}
}

func TestRecomputeGoodHonorsWindow(t *testing.T) {
	target := &Target{Spec: NewSpec(Spec{Window: 4})}
	target.happy = 0b11111 // 5 bits set, but window is 4
	target.recomputeGood()
	if target.good != 4 {
		t.Fatalf("expected good capped to window size 4, got %d", target.good)
	}
}

func TestStatusStringWidth(t *testing.T) {
	target := &Target{Spec: NewSpec(Spec{Window: 8})}
	target.happy = 0b101
	s := target.statusString()
	if len(s) != 9 {
		t.Fatalf("expected 9-char status string, got %q (len %d)", s, len(s))
	}
	if s[len(s)-1] != '1' || s[len(s)-2] != '0' || s[len(s)-3] != '1' {
		t.Fatalf("expected trailing ...101, got %q", s)
	}
}
