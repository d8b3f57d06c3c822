package wbs

import "testing"

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1", "2", -1},
		{"1.2", "1.10", -1},
		{"1.10", "1.2", 1},
		{"1.2", "1.2", 0},
		{"1", "1.1", -1},
		{"2", "1.9", 1},
		{"1.2.3", "1.2.10", -1},
		{"2", "1.99", 1},
		// non-numeric segments count as 0
		{"1.a", "1.1", -1},
	}
	for _, c := range cases {
		got := Compare(c.a, c.b)
		if got != c.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestParent(t *testing.T) {
	if got := Parent("1.2.3"); got != "1.2" {
		t.Fatalf("Parent(1.2.3) = %q", got)
	}
	if got := Parent("1"); got != "" {
		t.Fatalf("Parent(1) = %q", got)
	}
}

func TestIsDescendant(t *testing.T) {
	if !IsDescendant("1.2.5", "1") {
		t.Fatal("1.2.5 should descend from 1")
	}
	if !IsDescendant("1.2", "1") {
		t.Fatal("1.2 should descend from 1")
	}
	if IsDescendant("12", "1") {
		t.Fatal("12 must not descend from 1")
	}
	if IsDescendant("1", "1") {
		t.Fatal("a key is not its own descendant")
	}
}

func TestRebase(t *testing.T) {
	cases := []struct {
		key, oldRoot, newRoot, want string
	}{
		{"1", "1", "3", "3"},
		{"1.1", "1", "3", "3.1"},
		{"1.2.4", "1", "3", "3.2.4"},
		{"2", "1", "3", "2"},
		{"12.1", "1", "3", "12.1"},
	}
	for _, c := range cases {
		if got := Rebase(c.key, c.oldRoot, c.newRoot); got != c.want {
			t.Errorf("Rebase(%q, %q, %q) = %q, want %q", c.key, c.oldRoot, c.newRoot, got, c.want)
		}
	}
}
