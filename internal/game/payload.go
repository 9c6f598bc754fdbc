package game

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	resultWin  = "win"
	resultLose = "lose"
)

// EndPayload is a decoded end-of-round report. Fields are nil when absent.
// The current client sends result/time_used, older clients send
// is_won/duration.
type EndPayload struct {
	Result       *string
	Level        *string
	TimeUsed     *int
	AttemptsLeft *int

	IsWon    *bool
	Duration *int

	// parse failures of the duration fields, reported only for the shape in use
	timeUsedErr error
	durationErr error
}

// Report is the normalized result of a round
type Report struct {
	Won          bool
	Duration     int
	AttemptsLeft *int
}

// ParseEndPayload decodes a request body. An empty body is read as {}.
func ParseEndPayload(body []byte) (EndPayload, error) {
	var p EndPayload

	fields, err := decodeObject(body)
	if err != nil {
		return p, err
	}

	if raw, ok := fields["result"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			p.Result = &s
		}
	}
	if raw, ok := fields["level"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			p.Level = &s
		}
	}

	p.TimeUsed, p.timeUsedErr = intField(fields, "time_used")
	p.Duration, p.durationErr = intField(fields, "duration")
	// attempts_left is informational only; unusable values are dropped
	p.AttemptsLeft, _ = intField(fields, "attempts_left")

	if raw, ok := fields["is_won"]; ok && !isNull(raw) {
		won := truthy(raw)
		p.IsWon = &won
	}

	return p, nil
}

// Normalize picks the payload shape and returns the round result. The
// current shape is used only when result is exactly "win" or "lose". A
// malformed value in a field of the other shape is ignored.
func (p EndPayload) Normalize() (Report, error) {
	var won *bool
	var duration *int
	var durationErr error

	if p.Result != nil && (*p.Result == resultWin || *p.Result == resultLose) {
		w := *p.Result == resultWin
		won = &w
		duration, durationErr = p.TimeUsed, p.timeUsedErr
	} else {
		won, duration, durationErr = p.IsWon, p.Duration, p.durationErr
	}

	if durationErr != nil {
		return Report{}, durationErr
	}

	if won == nil || duration == nil {
		return Report{}, ErrMissingData
	}

	return Report{
		Won:          *won,
		Duration:     *duration,
		AttemptsLeft: p.AttemptsLeft,
	}, nil
}

func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if fields == nil {
		// literal null
		return map[string]json.RawMessage{}, nil
	}
	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// intField reads an integer-like field. Fractions are truncated toward zero
// and numeric strings are accepted; null counts as absent. Values must fit
// the int4 columns they are stored in.
func intField(fields map[string]json.RawMessage, name string) (*int, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return nil, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
	}

	var n int
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("%w: %s is not a finite number", ErrMalformedPayload, name)
		}
		val = math.Trunc(val)
		if val < math.MinInt32 || val > math.MaxInt32 {
			return nil, fmt.Errorf("%w: %s is out of range", ErrMalformedPayload, name)
		}
		n = int(val)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not an integer", ErrMalformedPayload, name)
		}
		n = int(parsed)
	case bool:
		if val {
			n = 1
		}
	default:
		return nil, fmt.Errorf("%w: %s is not a number", ErrMalformedPayload, name)
	}

	return &n, nil
}

// truthy follows the usual dynamic-language rules: false, 0, "", [] and {}
// are false, everything else is true.
func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}

	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return false
	}
}
