package lifecycle

import (
	"errors"
	"slices"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want State
	}{
		{"welcome", Welcome},
		{"create", CreateForm},
		{"create-form", CreateForm},
		{"join", JoinForm},
		{"Host-Waiting", HostWaiting},
		{" spectating ", Spectating},
		{"score-updated", ScoreUpdated},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if _, err := Parse("lobby"); err == nil {
		t.Error("Parse(lobby): expected error")
	}
	if _, err := Parse(""); err == nil {
		t.Error("Parse(empty): expected error")
	}
}

func TestMarker(t *testing.T) {
	if got := CreateForm.Marker(); got != "create" {
		t.Errorf("CreateForm.Marker() = %q, want create", got)
	}
	if got := ScoreUpdated.Marker(); got != "" {
		t.Errorf("ScoreUpdated.Marker() = %q, want empty", got)
	}
	if got := None.Marker(); got != "" {
		t.Errorf("None.Marker() = %q, want empty", got)
	}
}

func TestTimeline_HostFlow(t *testing.T) {
	tl := NewTimeline("host")
	for _, s := range []State{Welcome, CreateForm, HostWaiting, Spectating, Pitching, Spectating, Spectating} {
		if err := tl.Observe(s); err != nil {
			t.Fatalf("Observe(%s): %v", s, err)
		}
	}

	want := []State{Welcome, CreateForm, HostWaiting, Spectating, Spectating, Spectating}
	if got := tl.Phases(); !slices.Equal(got, want) {
		t.Errorf("Phases() = %v, want %v", got, want)
	}
	if tl.Current() != Spectating {
		t.Errorf("Current() = %s, want spectating", tl.Current())
	}
	if len(tl.States()) != 7 {
		t.Errorf("States(): got %d, want 7", len(tl.States()))
	}
}

func TestTimeline_DeepLinkSkipsWelcome(t *testing.T) {
	tl := NewTimeline("guest")
	if err := tl.Observe(JoinForm); err != nil {
		t.Fatalf("Observe(join-form): %v", err)
	}
	if tl.Contains(Welcome) {
		t.Error("timeline contains welcome")
	}
}

func TestTimeline_RejectsIllegalTransition(t *testing.T) {
	tl := NewTimeline("player1")
	if err := tl.Observe(Welcome); err != nil {
		t.Fatal(err)
	}
	err := tl.Observe(HostWaiting)

	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("Observe(host-waiting): got %v, want TransitionError", err)
	}
	if te.From != Welcome || te.To != HostWaiting || te.Actor != "player1" {
		t.Errorf("TransitionError = %+v", te)
	}
	if tl.Current() != Welcome {
		t.Errorf("Current() = %s after rejected transition, want welcome", tl.Current())
	}
}
