package domain

import "testing"

func TestAvatarRefFor(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"alice", "https://robohash.org/alice.png?size=40x40&set=set4"},
		{"Bot Alice", "https://robohash.org/BotAlice.png?size=40x40&set=set4"},
		{"  spaced  out  ", "https://robohash.org/spacedout.png?size=40x40&set=set4"},
		{"", "https://robohash.org/guest.png?size=40x40&set=set4"},
	}
	for _, tc := range cases {
		if got := AvatarRefFor(tc.name); got != tc.want {
			t.Errorf("AvatarRefFor(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestQuestionHasOption(t *testing.T) {
	q := Question{Options: []string{"Berlin", "Madrid", "Paris", "Rome"}, CorrectAnswer: "Paris"}
	if !q.HasOption("Paris") {
		t.Fatalf("expected Paris to be an option")
	}
	if q.HasOption("paris") {
		t.Fatalf("option matching is exact, lowercase should miss")
	}
	if q.HasOption("") {
		t.Fatalf("empty string is not an option")
	}
}
