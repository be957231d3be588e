package quota

import "testing"

func TestChargeUnbounded(t *testing.T) {
	a := New()
	if !a.Charge(Memory, 1000) {
		t.Fatal("unbounded charge should succeed")
	}
	if a.Peek(Memory, Current) != 1000 {
		t.Fatalf("current = %d, want 1000", a.Peek(Memory, Current))
	}
	if a.Peek(Memory, Maximum) != 1000 {
		t.Fatalf("maximum = %d, want 1000", a.Peek(Memory, Maximum))
	}
}

func TestChargeExceedsLimit(t *testing.T) {
	a := New()
	a.SetLimit(Output, 64)
	if !a.Charge(Output, 64) {
		t.Fatal("charge at exactly the limit should succeed")
	}
	if a.Charge(Output, 1) {
		t.Fatal("charge past the limit should fail")
	}
	if a.Peek(Output, Current) != 64 {
		t.Fatalf("current should be unchanged by the rejected charge, got %d", a.Peek(Output, Current))
	}
}

func TestMaximumMonotone(t *testing.T) {
	a := New()
	a.Charge(Instructions, 500)
	a.Charge(Instructions, -300)
	if a.Peek(Instructions, Current) != 200 {
		t.Fatalf("current = %d, want 200", a.Peek(Instructions, Current))
	}
	if a.Peek(Instructions, Maximum) != 500 {
		t.Fatalf("maximum should stay at the high-water mark, got %d", a.Peek(Instructions, Maximum))
	}
	a.Charge(Instructions, 100)
	if a.Peek(Instructions, Maximum) != 500 {
		t.Fatalf("maximum should not rise below the prior high-water mark, got %d", a.Peek(Instructions, Maximum))
	}
}

func TestResetPreservesMaximum(t *testing.T) {
	a := New()
	a.Charge(Memory, 42)
	a.Reset(Memory)
	if a.Peek(Memory, Current) != 0 {
		t.Fatalf("current after reset = %d, want 0", a.Peek(Memory, Current))
	}
	if a.Peek(Memory, Maximum) != 42 {
		t.Fatalf("maximum after reset = %d, want 42", a.Peek(Memory, Maximum))
	}
}

func TestSetTracksMaximum(t *testing.T) {
	a := New()
	a.Set(Output, 10)
	a.Set(Output, 5)
	if a.Peek(Output, Current) != 5 {
		t.Fatalf("current = %d, want 5", a.Peek(Output, Current))
	}
	if a.Peek(Output, Maximum) != 10 {
		t.Fatalf("maximum = %d, want 10", a.Peek(Output, Maximum))
	}
}
