package domain

import "testing"

func TestParseEpisodeRange(t *testing.T) {
	cases := []struct {
		expr string
		want []int
	}{
		{"e1", []int{1}},
		{"e1-e12", []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
		{"e1-e3|e7", []int{1, 2, 3, 7}},
		{"-e3", []int{1, 2, 3}},
		{"e0", nil},
	}

	for _, c := range cases {
		r, err := ParseEpisodeRange(c.expr)
		if err != nil {
			t.Fatalf("ParseEpisodeRange(%q): %v", c.expr, err)
		}
		if c.expr == "e0" {
			if !r.IsSpecials() {
				t.Errorf("ParseEpisodeRange(%q): expected specials range", c.expr)
			}
			continue
		}
		got := r.Episodes()
		if len(got) != len(c.want) {
			t.Fatalf("ParseEpisodeRange(%q) = %v, want %v", c.expr, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("ParseEpisodeRange(%q) = %v, want %v", c.expr, got, c.want)
			}
		}
	}
}

func TestParseEpisodeRangeErrors(t *testing.T) {
	cases := []string{"", "e1-e0", "e3-e1", "x1", "e1-e5|e0", "e5-"}
	for _, expr := range cases {
		if _, err := ParseEpisodeRange(expr); err == nil {
			t.Errorf("ParseEpisodeRange(%q): expected error, got nil", expr)
		}
	}
}

func TestResolveOpenEnded(t *testing.T) {
	r, err := ResolveOpenEnded("e5-", 8)
	if err != nil {
		t.Fatalf("ResolveOpenEnded: %v", err)
	}
	want := []int{5, 6, 7, 8}
	got := r.Episodes()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestEpisodeRangeContainsAndLen(t *testing.T) {
	r, err := ParseEpisodeRange("e1-e5")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Contains(3) {
		t.Error("expected range to contain 3")
	}
	if r.Contains(6) {
		t.Error("expected range not to contain 6")
	}
	if r.Len() != 5 {
		t.Errorf("Len() = %d, want 5", r.Len())
	}
}

func TestEpisodeRangeIntersect(t *testing.T) {
	a, _ := ParseEpisodeRange("e1-e5")
	b, _ := ParseEpisodeRange("e3-e8")
	got := a.Intersect(b)
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("Intersect = %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("Intersect = %v, want %v", got, want)
		}
	}
}

func TestLongestPrefixOverlap(t *testing.T) {
	r, _ := ParseEpisodeRange("e1-e5")
	other, _ := ParseEpisodeRange("e1-e3|e9")
	if n := r.LongestPrefixOverlap(other); n != 3 {
		t.Errorf("LongestPrefixOverlap = %d, want 3", n)
	}

	noOverlap, _ := ParseEpisodeRange("e10-e12")
	if n := r.LongestPrefixOverlap(noOverlap); n != 0 {
		t.Errorf("LongestPrefixOverlap = %d, want 0", n)
	}
}

func TestEpisodeRangeString(t *testing.T) {
	r, _ := ParseEpisodeRange("e1-e3|e7|e9-e10")
	if got, want := r.String(), "e1-e3|e7|e9-e10"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	specials, _ := ParseEpisodeRange("e0")
	if got, want := specials.String(), "e0"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
