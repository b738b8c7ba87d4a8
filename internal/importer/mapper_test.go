package importer

import (
	"testing"
	"time"
)

func TestMapRow(t *testing.T) {
	header := []string{"SOS_VOTERID", "COUNTY_NUMBER", "LAST_NAME", "FIRST_NAME", "DATE_OF_BIRTH"}

	t.Run("basic mapping", func(t *testing.T) {
		v := MapRow(header, []string{"OH0012345", "25", "Public", "Jane", "1985-03-17"})
		if v == nil {
			t.Fatal("expected mapped voter, got nil")
		}
		if v.SOSVoterID != "OH0012345" {
			t.Errorf("SOSVoterID = %q", v.SOSVoterID)
		}
		if v.CountyNumber != "25" {
			t.Errorf("CountyNumber = %q", v.CountyNumber)
		}
		if v.LastName != "Public" || v.FirstName != "Jane" {
			t.Errorf("name = %q %q", v.FirstName, v.LastName)
		}
		if v.DateOfBirth == nil {
			t.Fatal("expected parsed date of birth")
		}
		want := time.Date(1985, 3, 17, 0, 0, 0, 0, time.UTC)
		if !v.DateOfBirth.Equal(want) {
			t.Errorf("DateOfBirth = %v, want %v", v.DateOfBirth, want)
		}
	})

	t.Run("values are trimmed", func(t *testing.T) {
		v := MapRow(header, []string{"  OH0012345 ", " 25", " Public ", "", ""})
		if v == nil {
			t.Fatal("expected mapped voter, got nil")
		}
		if v.SOSVoterID != "OH0012345" {
			t.Errorf("SOSVoterID = %q, want trimmed", v.SOSVoterID)
		}
		if v.LastName != "Public" {
			t.Errorf("LastName = %q, want trimmed", v.LastName)
		}
	})

	t.Run("no identifier rejects row", func(t *testing.T) {
		if v := MapRow(header, []string{"", "", "Public", "Jane", "1985-03-17"}); v != nil {
			t.Errorf("expected nil for row without identifiers, got %+v", v)
		}
		// Whitespace-only identifiers count as absent.
		if v := MapRow(header, []string{"   ", "  ", "Public", "Jane", ""}); v != nil {
			t.Errorf("expected nil for whitespace identifiers, got %+v", v)
		}
	})

	t.Run("unmapped columns ignored", func(t *testing.T) {
		h := []string{"SOS_VOTERID", "GENERAL-11/08/2022", "PRIMARY-05/03/2022", "PARTY_AFFILIATION"}
		v := MapRow(h, []string{"OH0012345", "X", "D", "R"})
		if v == nil {
			t.Fatal("expected mapped voter, got nil")
		}
		if v.SOSVoterID != "OH0012345" {
			t.Errorf("SOSVoterID = %q", v.SOSVoterID)
		}
	})

	t.Run("short record", func(t *testing.T) {
		v := MapRow(header, []string{"OH0012345"})
		if v == nil {
			t.Fatal("expected mapped voter, got nil")
		}
		if v.LastName != "" {
			t.Errorf("LastName = %q, want empty", v.LastName)
		}
	})

	t.Run("extra record fields ignored", func(t *testing.T) {
		v := MapRow(header, []string{"OH0012345", "25", "Public", "Jane", "1985-03-17", "extra", "fields"})
		if v == nil {
			t.Fatal("expected mapped voter, got nil")
		}
	})
}

func TestParseDateFormats(t *testing.T) {
	want := time.Date(1985, 3, 17, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"1985-03-17", "03/17/1985", "03-17-1985"} {
		got := parseDate(s)
		if got == nil {
			t.Fatalf("parseDate(%q) = nil", s)
		}
		if !got.Equal(want) {
			t.Errorf("parseDate(%q) = %v, want %v", s, got, want)
		}
	}

	t.Run("bad date leaves field unset", func(t *testing.T) {
		if got := parseDate("17.03.1985"); got != nil {
			t.Errorf("parseDate = %v, want nil", got)
		}

		header := []string{"SOS_VOTERID", "DATE_OF_BIRTH"}
		v := MapRow(header, []string{"OH0012345", "not-a-date"})
		if v == nil {
			t.Fatal("bad date must not reject the row")
		}
		if v.DateOfBirth != nil {
			t.Errorf("DateOfBirth = %v, want nil", v.DateOfBirth)
		}
	})
}
