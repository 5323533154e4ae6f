package rtsp

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLiteralLayout is the 14-digit local-time literal of spec §4.3.
const DateLiteralLayout = "20060102150405"

// MaxEpochDigits is the longest literal spec §4.3 treats as Unix epoch
// seconds ("Unix epoch seconds (≤10 digits, always UTC)").
const MaxEpochDigits = 10

// DateLiteralDigits is the fixed width of the local-time literal.
const DateLiteralDigits = 14

var tzPattern = regexp.MustCompile(`TZ/UTC([+-]\d{1,2})(?::?(\d{2}))?`)

// ExtractTZOffset reads the "TZ/UTC±N" tag from a User-Agent header (spec
// §4.3), defaulting to UTC (zero offset) when absent or malformed.
func ExtractTZOffset(userAgent string) time.Duration {
	m := tzPattern.FindStringSubmatch(userAgent)
	if m == nil {
		return 0
	}

	hours, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}

	minutes := 0
	if m[2] != "" {
		minutes, _ = strconv.Atoi(m[2])
	}

	sign := time.Duration(1)
	if hours < 0 {
		sign = -1
		hours = -hours
	}
	return sign * (time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute)
}

// shiftLiteral converts one side of a playseek range: epoch literals pass
// through unchanged (already UTC); 14-digit local literals are
// reinterpreted as tzOffset-from-UTC wall-clock time and re-rendered in
// the same literal format, now representing the UTC instant (spec §4.3:
// "Converted values are re-inserted... using the original literal
// format").
func shiftLiteral(raw string, tzOffset time.Duration) (string, error) {
	if raw == "" {
		return "", nil
	}
	if !isAllDigits(raw) {
		return "", fmt.Errorf("rtsp: playseek literal %q is not numeric", raw)
	}

	switch len(raw) {
	case DateLiteralDigits:
		t, err := time.Parse(DateLiteralLayout, raw)
		if err != nil {
			return "", fmt.Errorf("rtsp: invalid playseek date literal %q: %w", raw, err)
		}
		utc := t.Add(-tzOffset)
		return utc.Format(DateLiteralLayout), nil
	default:
		if len(raw) > MaxEpochDigits {
			return "", fmt.Errorf("rtsp: playseek literal %q is neither a %d-digit date nor a %d-digit epoch", raw, DateLiteralDigits, MaxEpochDigits)
		}
		return raw, nil // epoch seconds, always UTC already
	}
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// RewriteRange converts a raw "<start>-<end>" (either side may be empty)
// playseek value to its UTC-normalized form, preserving each side's
// original literal width.
func RewriteRange(raw string, userAgent string) (string, error) {
	tz := ExtractTZOffset(userAgent)

	start, end, hasDash := strings.Cut(raw, "-")
	if !hasDash {
		start, end = raw, ""
	}

	shiftedStart, err := shiftLiteral(start, tz)
	if err != nil {
		return "", err
	}
	shiftedEnd, err := shiftLiteral(end, tz)
	if err != nil {
		return "", err
	}

	if !hasDash {
		return shiftedStart, nil
	}
	return shiftedStart + "-" + shiftedEnd, nil
}

// OffsetLiteral synthesizes an open-ended playseek range starting
// offsetSeconds in the past from now, for the `r2h-seek-offset` form
// (spec §4.3: "an integer-second offset"). The result is an epoch literal
// so no TZ interpretation is needed downstream.
func OffsetLiteral(now time.Time, offsetSeconds int) string {
	return strconv.FormatInt(now.Add(-time.Duration(offsetSeconds)*time.Second).Unix(), 10) + "-"
}

// Resolve looks up paramName (or, if absent, synthesizes from
// offsetSeconds when offsetSeconds > 0) in query and returns the
// UTC-normalized literal to substitute into the upstream DESCRIBE URL,
// plus whether a time-shift was requested at all.
func Resolve(query url.Values, paramName string, offsetSeconds int, userAgent string, now time.Time) (rewritten string, present bool, err error) {
	if raw := query.Get(paramName); raw != "" {
		rewritten, err = RewriteRange(raw, userAgent)
		return rewritten, true, err
	}
	if offsetSeconds > 0 {
		return OffsetLiteral(now, offsetSeconds), true, nil
	}
	return "", false, nil
}
