package types

import "testing"

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		cur, next BoxStatus
		want      bool
	}{
		{BoxConfigured, BoxRunning, true},
		{BoxConfigured, BoxStopped, true},
		{BoxConfigured, BoxStopping, false},
		{BoxRunning, BoxStopping, true},
		{BoxRunning, BoxConfigured, false},
		{BoxStopping, BoxStopped, true},
		{BoxStopping, BoxRunning, false},
		{BoxStopped, BoxRunning, true},
		{BoxStopped, BoxConfigured, false},
		{BoxUnknown, BoxStopped, true},
		{BoxUnknown, BoxRunning, true},
	}
	for _, c := range cases {
		if got := CanTransitionTo(c.cur, c.next); got != c.want {
			t.Errorf("CanTransitionTo(%s, %s) = %v, want %v", c.cur, c.next, got, c.want)
		}
	}
}

func TestBoxStatusPredicates(t *testing.T) {
	if !BoxConfigured.CanStart() {
		t.Error("Configured should permit start")
	}
	if !BoxStopped.CanStart() {
		t.Error("Stopped should permit start")
	}
	if BoxRunning.CanStart() {
		t.Error("Running should not permit start")
	}
	if !BoxRunning.CanStop() {
		t.Error("Running should permit stop")
	}
	if !BoxUnknown.CanRemove() {
		t.Error("Unknown should permit remove")
	}
	if BoxRunning.CanRemove() {
		t.Error("Running should not permit remove")
	}
}
