package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampKind tags which encoding a Timestamp was resolved from.
type TimestampKind uint8

const (
	// Unparseable is the zero kind: the source value could not be interpreted.
	Unparseable TimestampKind = iota
	// Millis came from a numeric epoch value or a provider-native object.
	Millis
	// ISO came from an ISO-8601 string; the original text is kept for display.
	ISO
)

// secondsCutoff separates epoch seconds from epoch milliseconds. 1e11 seconds is
// in the year 5138, while 1e11 milliseconds is March 1973.
const secondsCutoff = 1e11

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Timestamp is a normalized point in time. Every producer encoding is resolved
// into one of three shapes at the decoding boundary so downstream code only
// deals with epoch milliseconds.
type Timestamp struct {
	kind   TimestampKind
	millis int64
	iso    string
}

// FromMillis builds a Timestamp from epoch milliseconds.
func FromMillis(ms int64) Timestamp {
	return Timestamp{kind: Millis, millis: ms}
}

// FromTime builds a Timestamp from a time.Time. The zero time is Unparseable.
func FromTime(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return FromMillis(t.UnixMilli())
}

// Kind reports the encoding the timestamp was resolved from.
func (t Timestamp) Kind() TimestampKind { return t.kind }

// Valid reports whether the timestamp resolved to a point in time.
func (t Timestamp) Valid() bool { return t.kind != Unparseable }

// Millis returns epoch milliseconds and whether the value is usable.
func (t Timestamp) Millis() (int64, bool) {
	if t.kind == Unparseable {
		return 0, false
	}
	return t.millis, true
}

// Time converts to a UTC time.Time. The zero time is returned for Unparseable.
func (t Timestamp) Time() time.Time {
	if t.kind == Unparseable {
		return time.Time{}
	}
	return time.UnixMilli(t.millis).UTC()
}

// String renders the original ISO text when there is one, RFC 3339 otherwise.
func (t Timestamp) String() string {
	switch t.kind {
	case ISO:
		return t.iso
	case Millis:
		return t.Time().Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// ParseTimestamp resolves a decoded value of any supported encoding. It never
// fails: values it cannot interpret come back Unparseable.
func ParseTimestamp(v any) Timestamp {
	switch val := v.(type) {
	case nil:
		return Timestamp{}
	case Timestamp:
		return val
	case time.Time:
		return FromTime(val)
	case *time.Time:
		if val == nil {
			return Timestamp{}
		}
		return FromTime(*val)
	case float64:
		return fromNumber(val)
	case float32:
		return fromNumber(float64(val))
	case int:
		return fromNumber(float64(val))
	case int64:
		return fromNumber(float64(val))
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return Timestamp{}
		}
		return fromNumber(f)
	case string:
		return parseTimestampString(val)
	case map[string]any:
		return fromNativeObject(val)
	default:
		return Timestamp{}
	}
}

func fromNumber(f float64) Timestamp {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return Timestamp{}
	}
	if f < secondsCutoff {
		f *= 1000
	}
	if f > math.MaxInt64/2 {
		return Timestamp{}
	}
	return FromMillis(int64(f))
}

func parseTimestampString(s string) Timestamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromNumber(f)
	}
	for _, layout := range isoLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return Timestamp{kind: ISO, millis: parsed.UnixMilli(), iso: s}
		}
	}
	return Timestamp{}
}

// fromNativeObject handles provider-native {seconds, nanoseconds} objects,
// with or without the underscore prefix used by their JSON serialization.
func fromNativeObject(m map[string]any) Timestamp {
	secs, ok := numberField(m, "seconds", "_seconds")
	if !ok {
		return Timestamp{}
	}
	nanos, _ := numberField(m, "nanoseconds", "_nanoseconds")
	ms := secs*1000 + math.Floor(nanos/1e6)
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms <= 0 {
		return Timestamp{}
	}
	return FromMillis(int64(ms))
}

func numberField(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case json.Number:
			f, err := v.Float64()
			return f, err == nil
		}
	}
	return 0, false
}

// UnmarshalJSON accepts every supported encoding and never returns an error
// for well-formed JSON, so one bad timestamp cannot reject a whole message.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		*t = Timestamp{}
		return nil //nolint:nilerr // malformed timestamps degrade to Unparseable
	}
	*t = ParseTimestamp(v)
	return nil
}

// MarshalJSON writes epoch milliseconds, or null when Unparseable.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.kind == Unparseable {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.millis, 10)), nil
}
