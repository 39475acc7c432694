package billid

import (
	"testing"
	"time"
)

func TestPrefix(t *testing.T) {
	day := time.Date(2025, time.September, 1, 14, 30, 0, 0, time.UTC)
	if got := Prefix(day); got != "B250901" {
		t.Fatalf("expected B250901, got %s", got)
	}
}

func TestFormatPadsToThreeDigits(t *testing.T) {
	if got := Format("B250901", 7); got != "B250901-007" {
		t.Fatalf("expected B250901-007, got %s", got)
	}
	if got := Format("B250901", 1234); got != "B250901-1234" {
		t.Fatalf("expected sequence to widen past 999, got %s", got)
	}
}

func TestParseRoundTrip(t *testing.T) {
	prefix, seq, ok := Parse("B250901-042")
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if prefix != "B250901" || seq != 42 {
		t.Fatalf("unexpected parse result %s %d", prefix, seq)
	}
}

func TestParseRejectsMalformedIDs(t *testing.T) {
	for _, id := range []string{"", "B250901", "X250901-001", "B2509-001", "B250901-", "B250901-abc"} {
		if _, _, ok := Parse(id); ok {
			t.Fatalf("expected parse of %q to fail", id)
		}
	}
}
