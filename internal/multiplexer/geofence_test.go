package multiplexer

import "testing"

func TestGeofenceAuthorizes(t *testing.T) {
	cases := []struct {
		tag, country string
		want         bool
	}{
		{"GLOBAL", "US", true},
		{"EU", "DE", true},
		{"EU", "US", false},
		{"DE", "DE", true},
		{"DE", "FR", false},
	}
	for _, c := range cases {
		if got := geofenceAuthorizes(c.tag, c.country); got != c.want {
			t.Errorf("geofenceAuthorizes(%q, %q) = %v, want %v", c.tag, c.country, got, c.want)
		}
	}
}

func TestASCapTrackerEnforcesLimit(t *testing.T) {
	tr := newASCapTracker(2)
	if !tr.allow("obj1", "AS1") {
		t.Fatal("first placement should be allowed")
	}
	if !tr.allow("obj1", "AS1") {
		t.Fatal("second placement should be allowed")
	}
	if tr.allow("obj1", "AS1") {
		t.Fatal("third placement should be rejected")
	}
	if !tr.allow("obj1", "AS2") {
		t.Fatal("different AS should have its own counter")
	}
	if !tr.allow("obj2", "AS1") {
		t.Fatal("different object should have its own counter")
	}
}

func TestASCapTrackerDisabledWhenZero(t *testing.T) {
	tr := newASCapTracker(0)
	for i := 0; i < 50; i++ {
		if !tr.allow("obj1", "AS1") {
			t.Fatal("zero cap should never reject")
		}
	}
}
