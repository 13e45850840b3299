package media

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Timestamp is an offset into a video, kept with millisecond precision.
type Timestamp struct {
	d time.Duration
}

const maxTimestampHours = 1000

// MaxTimestamp is the largest offset ParseTimestamp accepts.
const MaxTimestamp = maxTimestampHours * time.Hour

// timestampRegex matches [[H:]M:]S[.fff]
var timestampRegex = regexp.MustCompile(`^(?:(?:(\d+):)?(\d{1,2}):)?(\d+)(?:\.(\d{1,3}))?$`)

// ParseTimestamp accepts HH:MM:SS, MM:SS or plain seconds, each with an
// optional fractional part.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	matches := timestampRegex.FindStringSubmatch(s)
	if matches == nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: expected HH:MM:SS, MM:SS or seconds", s)
	}

	hours, err := atoiOrZero(matches[1])
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	minutes, err := atoiOrZero(matches[2])
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	seconds, err := strconv.Atoi(matches[3])
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}

	if matches[2] != "" && seconds > 59 {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: seconds must be 0-59", s)
	}
	if matches[1] != "" && minutes > 59 {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: minutes must be 0-59", s)
	}
	// bound each component before multiplying so the sum cannot overflow
	if hours > maxTimestampHours || seconds > maxTimestampHours*3600 {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: must not exceed %s", s, MaxTimestamp)
	}

	var millis int
	if frac := matches[4]; frac != "" {
		frac += strings.Repeat("0", 3-len(frac))
		millis, _ = strconv.Atoi(frac)
	}

	d := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond
	if d > MaxTimestamp {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: must not exceed %s", s, MaxTimestamp)
	}

	return Timestamp{d: d}, nil
}

// TimestampOf wraps a duration, truncated to milliseconds.
func TimestampOf(d time.Duration) Timestamp {
	if d < 0 {
		d = 0
	}
	return Timestamp{d: d.Truncate(time.Millisecond)}
}

// Duration returns the offset from the start of the video.
func (t Timestamp) Duration() time.Duration { return t.d }

// Before returns true if t is before other
func (t Timestamp) Before(other Timestamp) bool { return t.d < other.d }

// String renders HH:MM:SS, with .fff appended when there are milliseconds.
func (t Timestamp) String() string {
	total := t.d.Milliseconds()
	millis := total % 1000
	secs := total / 1000
	out := fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
	if millis != 0 {
		out += fmt.Sprintf(".%03d", millis)
	}
	return out
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
