// Package billid implements the date-scoped bill identifier format
// B{YY}{MM}{DD}-{NNN}. Sequence numbers are monotonically increasing within
// a calendar day and never reused across days.
package billid

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Prefix returns the day prefix for t, e.g. B250901 for 2025-09-01.
func Prefix(t time.Time) string {
	return t.Format("B060102")
}

// Format renders a full bill id from a day prefix and sequence number.
// Sequence numbers are zero-padded to three digits; numbers beyond 999
// widen naturally instead of wrapping.
func Format(prefix string, seq int) string {
	return fmt.Sprintf("%s-%03d", prefix, seq)
}

// Parse splits a bill id into its day prefix and sequence number. It is
// used to reconcile per-day counters against restored sales history.
func Parse(id string) (prefix string, seq int, ok bool) {
	idx := strings.LastIndex(id, "-")
	if idx < 1 || idx == len(id)-1 {
		return "", 0, false
	}
	prefix = id[:idx]
	if !strings.HasPrefix(prefix, "B") || len(prefix) != 7 {
		return "", 0, false
	}
	seq, err := strconv.Atoi(id[idx+1:])
	if err != nil || seq < 0 {
		return "", 0, false
	}
	return prefix, seq, true
}
