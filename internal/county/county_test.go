package county

import (
	"sort"
	"testing"
)

func TestNumber(t *testing.T) {
	tests := []struct {
		name   string
		number string
	}{
		{"Adams", "01"},
		{"Franklin", "25"},
		{"Cuyahoga", "18"},
		{"Wyandot", "88"},
	}
	for _, tt := range tests {
		got, ok := Number(tt.name)
		if !ok {
			t.Fatalf("Number(%q) not found", tt.name)
		}
		if got != tt.number {
			t.Errorf("Number(%q) = %q, want %q", tt.name, got, tt.number)
		}
	}

	if _, ok := Number("Atlantis"); ok {
		t.Error("unknown county should not resolve")
	}
	// Lookup is case-sensitive: names come from a fixed UI list, not
	// free text.
	if _, ok := Number("franklin"); ok {
		t.Error("lowercase name should not resolve")
	}
}

func TestNameRoundTrip(t *testing.T) {
	for _, name := range Names() {
		number, ok := Number(name)
		if !ok {
			t.Fatalf("Names() returned unknown county %q", name)
		}
		if got := Name(number); got != name {
			t.Errorf("Name(%q) = %q, want %q", number, got, name)
		}
	}

	if got := Name("99"); got != "" {
		t.Errorf("Name(99) = %q, want empty", got)
	}
}

func TestNamesSortedAndComplete(t *testing.T) {
	names := Names()
	if len(names) != Count() {
		t.Fatalf("Names() returned %d entries, want %d", len(names), Count())
	}
	if Count() != 88 {
		t.Fatalf("Count() = %d, want 88", Count())
	}
	if !sort.StringsAreSorted(names) {
		t.Error("Names() should be sorted")
	}
}
