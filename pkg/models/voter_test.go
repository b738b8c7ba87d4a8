package models

import "testing"

func TestFullName(t *testing.T) {
	tests := []struct {
		name  string
		voter Voter
		want  string
	}{
		{"all parts", Voter{FirstName: "Jane", MiddleName: "Q", LastName: "Public"}, "Jane Q Public"},
		{"no middle", Voter{FirstName: "Jane", LastName: "Public"}, "Jane Public"},
		{"last only", Voter{LastName: "Public"}, "Public"},
		{"empty", Voter{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.voter.FullName(); got != tt.want {
				t.Errorf("FullName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasIdentifier(t *testing.T) {
	if (&Voter{FirstName: "Jane", LastName: "Public"}).HasIdentifier() {
		t.Error("voter without identifiers should not have identifier")
	}
	if !(&Voter{SOSVoterID: "OH123"}).HasIdentifier() {
		t.Error("voter with SOS id should have identifier")
	}
	if !(&Voter{CountyNumber: "25"}).HasIdentifier() {
		t.Error("voter with county number should have identifier")
	}
}
