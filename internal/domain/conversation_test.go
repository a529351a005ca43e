package domain

import "testing"

func TestCanonicalPairIsOrderIndependent(t *testing.T) {
	pairs := [][2]int64{{1, 2}, {9, 3}, {42, 41}, {100, 7}}
	for _, p := range pairs {
		lowAB, highAB := CanonicalPair(p[0], p[1])
		lowBA, highBA := CanonicalPair(p[1], p[0])
		if lowAB != lowBA || highAB != highBA {
			t.Fatalf("pair %v not canonical: (%d,%d) vs (%d,%d)", p, lowAB, highAB, lowBA, highBA)
		}
		if lowAB >= highAB {
			t.Fatalf("expected low < high for %v, got (%d,%d)", p, lowAB, highAB)
		}
	}
}

func TestCounterpart(t *testing.T) {
	c := &Conversation{ID: 1, ParticipantLow: 3, ParticipantHigh: 8}

	if c.Counterpart(3) != 8 || c.Counterpart(8) != 3 {
		t.Fatalf("unexpected counterparts: %d %d", c.Counterpart(3), c.Counterpart(8))
	}
	if !c.HasParticipant(3) || !c.HasParticipant(8) || c.HasParticipant(5) {
		t.Fatalf("unexpected participancy")
	}
}

func TestUsernameFallsBackToEmailLocalPart(t *testing.T) {
	blank := "  "
	name := "Dr. Rivera"

	tests := []struct {
		user User
		want string
	}{
		{User{Email: "b@x.com"}, "b"},
		{User{Email: "b@x.com", DisplayName: &blank}, "b"},
		{User{Email: "b@x.com", DisplayName: &name}, "Dr. Rivera"},
		{User{Email: "no-at-sign"}, "no-at-sign"},
	}
	for _, tt := range tests {
		if got := tt.user.Username(); got != tt.want {
			t.Fatalf("Username() = %q, want %q", got, tt.want)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  B@X.Com \n"); got != "b@x.com" {
		t.Fatalf("NormalizeEmail = %q", got)
	}
}
