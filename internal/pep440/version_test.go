package pep440

import "testing"

func TestCompareOrdering(t *testing.T) {
	// Ascending order, per PEP 440 "summary of permitted suffixes and
	// relative ordering" table.
	order := []string{
		"1.0.dev0",
		"1.0a1",
		"1.0a2",
		"1.0b1",
		"1.0rc1",
		"1.0",
		"1.0.post1",
		"1.0.post2",
		"1.1.dev0",
		"1.1",
		"2!1.0",
	}

	versions := make([]Version, len(order))
	for i, s := range order {
		v, err := Parse(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		versions[i] = v
	}

	for i := 1; i < len(versions); i++ {
		if !versions[i-1].Less(versions[i]) {
			t.Errorf("expected %q < %q", order[i-1], order[i])
		}
	}
}

func TestIsPrerelease(t *testing.T) {
	cases := map[string]bool{
		"1.0":        false,
		"1.0.post1":  false,
		"1.0a1":      true,
		"1.0b2":      true,
		"1.0rc1":     true,
		"1.0.dev0":   true,
		"2.9.0.dev1": true,
	}
	for s, want := range cases {
		v, err := Parse(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if got := v.IsPrerelease(); got != want {
			t.Errorf("%q: IsPrerelease() = %v, want %v", s, got, want)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	cases := []string{"1.0", "1.0a1", "1.0.post1", "1.0.dev0", "2!1.0+local.1"}
	for _, s := range cases {
		v, err := Parse(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		v2, err := Parse(v.String())
		if err != nil {
			t.Fatalf("reparse %q: %v", v.String(), err)
		}
		if !v.Equal(v2) {
			t.Errorf("round trip %q -> %q not equal", s, v.String())
		}
	}
}

func TestEquivalentSpellings(t *testing.T) {
	a := MustParse("1.0alpha1")
	b := MustParse("1.0a1")
	if !a.Equal(b) {
		t.Errorf("expected 1.0alpha1 == 1.0a1, got %s vs %s", a, b)
	}
}

func TestInvalidVersion(t *testing.T) {
	if _, err := Parse("not-a-version!!!"); err == nil {
		t.Error("expected error for invalid version")
	}
}
