package models

import "testing"

func TestStatusRankOrdering(t *testing.T) {
	if !(StatusSent.Rank() < StatusDelivered.Rank() && StatusDelivered.Rank() < StatusRead.Rank()) {
		t.Fatal("lifecycle must order sent < delivered < read")
	}
	if Status("bogus").Rank() != -1 {
		t.Fatal("unknown status should rank -1")
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusSent, StatusDelivered, StatusRead} {
		if !s.Valid() {
			t.Fatalf("%q should be valid", s)
		}
	}
	if Status("").Valid() || Status("pending").Valid() {
		t.Fatal("unknown statuses should be invalid")
	}
}

func TestCanAdvanceTo(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusSent, StatusDelivered, true},
		{StatusSent, StatusRead, true},
		{StatusDelivered, StatusRead, true},
		{StatusDelivered, StatusSent, false},
		{StatusRead, StatusDelivered, false},
		{StatusRead, StatusRead, false},
		{StatusSent, StatusSent, false},
		{StatusSent, Status("bogus"), false},
		{Status("bogus"), StatusRead, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanAdvanceTo(tc.to); got != tc.want {
			t.Errorf("CanAdvanceTo(%q -> %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
