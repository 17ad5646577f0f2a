package acuity

import "testing"

func TestPageGuard(t *testing.T) {
	cases := []struct {
		name  string
		pages [][]string
		want  []bool
	}{
		{
			name:  "distinct pages",
			pages: [][]string{{"1", "2"}, {"3", "4"}, {"5"}},
			want:  []bool{false, false, false},
		},
		{
			name:  "same page twice",
			pages: [][]string{{"501", "502"}, {"501", "502"}},
			want:  []bool{false, true},
		},
		{
			name:  "partial overlap with an older page",
			pages: [][]string{{"1", "2"}, {"3"}, {"4", "1"}},
			want:  []bool{false, false, true},
		},
		{
			name:  "duplicates inside the first page",
			pages: [][]string{{"7", "7"}, {"8"}},
			want:  []bool{false, false},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewPageGuard()
			for i, ids := range tc.pages {
				if got := g.Observe(ids); got != tc.want[i] {
					t.Fatalf("page %d: repeat = %v, want %v", i+1, got, tc.want[i])
				}
			}
		})
	}
}

func TestPageGuardIgnoresRepeatPageIDs(t *testing.T) {
	g := NewPageGuard()
	g.Observe([]string{"1"})
	if !g.Observe([]string{"1", "2"}) {
		t.Fatalf("expected repeat")
	}
	if g.Seen() != 1 {
		t.Fatalf("seen = %d, want 1", g.Seen())
	}
	if g.Observe([]string{"2"}) {
		t.Fatalf("id 2 came from a rejected page and must not count as seen")
	}
}
