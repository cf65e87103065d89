// Package timeparse resolves natural-language Chinese time phrases
// ("明天晚上十點半", "下週三下午3點") into concrete timestamps and the
// canonical TimeInfo representation the rest of the pipeline passes around.
package timeparse

import (
	"fmt"
	"time"
)

// TimeInfo is the canonical, immutable time representation handed to
// downstream consumers. A nil *TimeInfo means "no time resolved".
type TimeInfo struct {
	// Display is formatted as MM/DD H:MM AM|PM, e.g. "08/24 10:30 PM".
	Display string `json:"display"`
	// Date is formatted as YYYY-MM-DD.
	Date string `json:"date"`
	// Raw is the RFC 3339 rendering of the resolved time.
	Raw string `json:"raw"`
	// Timestamp is epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// CreateTimeInfo builds the canonical TimeInfo for a resolved time.
func CreateTimeInfo(t time.Time) TimeInfo {
	return TimeInfo{
		Display:   t.Format("01/02 3:04 PM"),
		Date:      t.Format("2006-01-02"),
		Raw:       t.Format(time.RFC3339),
		Timestamp: t.UnixMilli(),
	}
}

// ParseError reports an unparseable time phrase. Callers are expected to
// recover from it locally; a missing time is a reportable outcome, not a
// pipeline failure.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable time phrase %q: %s", e.Input, e.Reason)
}

func newParseError(input, reason string) *ParseError {
	return &ParseError{Input: input, Reason: reason}
}
