package instruction

import "testing"

func TestUnboundedNeverTrips(t *testing.T) {
	ti := NewTicker(nil, 0)
	for i := 0; i < 10000; i++ {
		ti.Done()
	}
	if ti.Exceeded() {
		t.Fatal("unbounded ticker should never exceed")
	}
}

func TestTripsAtLimit(t *testing.T) {
	ti := NewTicker(nil, 5)
	for i := 0; i < 5; i++ {
		if ti.Exceeded() {
			t.Fatalf("tripped early at tick %d", i)
		}
		ti.Done()
	}
	<-ti.Done()
	if !ti.Exceeded() {
		t.Fatal("expected ticker to have tripped")
	}
	if ti.Err() != ErrLimitExceeded {
		t.Fatalf("err = %v", ti.Err())
	}
}

func TestResetClearsTrip(t *testing.T) {
	ti := NewTicker(nil, 1)
	ti.Done()
	<-ti.Done()
	if !ti.Exceeded() {
		t.Fatal("expected trip before reset")
	}
	ti.Reset()
	if ti.Exceeded() {
		t.Fatal("reset should clear the trip")
	}
	if ti.Count() != 0 {
		t.Fatalf("count after reset = %d", ti.Count())
	}
}
