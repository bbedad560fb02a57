package topic

import "testing"

func TestMatchAlgebra(t *testing.T) {
	cases := []struct {
		topic, filter string
		want          bool
	}{
		{"any/topic/here", "#", true},
		{"a/b/c", "a/b/c", true},
		{"a/b", "a/+", true},
		{"a/b/c", "a/#", true},
		{"a", "a/#", true},
		{"a/b", "a/b/c", false},
		{"a/b/c", "a/+", false},
		{"sport/tennis/player1", "sport/+/player1", true},
		{"sport/tennis/player1/ranking", "sport/#", true},
		{"sport", "sport/#", true},
		{"sport/tennis", "sport/+", true},
		{"sport/tennis/player1", "sport/+", false},
	}
	for _, c := range cases {
		got := Match(c.topic, c.filter)
		if got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.topic, c.filter, got, c.want)
		}
	}
}

func TestSplit(t *testing.T) {
	if got := Split("a/b/c"); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("Split = %v", got)
	}
}
