package kpi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type ValueKind string

const (
	KindNumber     ValueKind = "number"
	KindPercentage ValueKind = "percentage"
	KindDuration   ValueKind = "duration"
	KindCount      ValueKind = "count"
	KindText       ValueKind = "text"
)

// Value is a KPI value of a closed set of kinds. Durations are held in milliseconds.
type Value struct {
	Kind ValueKind
	num  float64
	text string
}

func Number(v float64) Value         { return Value{Kind: KindNumber, num: v} }
func Percentage(v float64) Value     { return Value{Kind: KindPercentage, num: v} }
func Count(n int64) Value            { return Value{Kind: KindCount, num: float64(n)} }
func Text(s string) Value            { return Value{Kind: KindText, text: s} }
func Duration(d time.Duration) Value { return Value{Kind: KindDuration, num: float64(d) / float64(time.Millisecond)} }

// DurationMillis builds a duration value from milliseconds.
func DurationMillis(ms float64) Value { return Value{Kind: KindDuration, num: ms} }

// Numeric returns the number used for threshold classification. Text values are not numeric.
func (v Value) Numeric() (float64, bool) {
	if v.Kind == KindText || v.Kind == "" {
		return 0, false
	}
	return v.num, true
}

func (v Value) String() string {
	switch v.Kind {
	case KindPercentage:
		return strconv.FormatFloat(v.num, 'f', 1, 64) + "%"
	case KindCount:
		return strconv.FormatInt(int64(v.num), 10)
	case KindDuration:
		return time.Duration(v.num * float64(time.Millisecond)).Round(time.Millisecond).String()
	case KindText:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return ""
}

type valueJSON struct {
	Kind    ValueKind       `json:"kind"`
	Value   json.RawMessage `json:"value"`
	Display string          `json:"display,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var raw []byte
	var err error
	if v.Kind == KindText {
		raw, err = json.Marshal(v.text)
	} else {
		raw, err = json.Marshal(v.num)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Kind: v.Kind, Value: raw, Display: v.String()})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var vj valueJSON
	if err := json.Unmarshal(data, &vj); err != nil {
		return err
	}
	parsed, err := parseValue(vj.Kind, vj.Value)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// parseValue decodes a raw JSON scalar as the given kind. An empty kind is inferred from
// the scalar: numbers become KindNumber, strings KindText.
func parseValue(kind ValueKind, raw json.RawMessage) (Value, error) {
	var num float64
	numErr := json.Unmarshal(raw, &num)

	switch kind {
	case KindNumber, KindPercentage, KindDuration, KindCount:
		if numErr != nil {
			return Value{}, fmt.Errorf("value for kind %s is not numeric: %s", kind, string(raw))
		}
		return Value{Kind: kind, num: num}, nil
	case KindText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("value for kind text is not a string: %s", string(raw))
		}
		return Text(s), nil
	case "":
		if numErr == nil {
			return Number(num), nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("value is neither number nor string: %s", string(raw))
		}
		return Text(s), nil
	}
	return Value{}, fmt.Errorf("unknown value kind %q", kind)
}
