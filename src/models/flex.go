package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// The platform is not consistent about JSON types: identifiers arrive as
// strings or numbers, amounts sometimes as numeric strings. These wrappers
// accept both and reject anything else.

var jsonNull = []byte("null")

// FlexString accepts a JSON string or number.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, jsonNull) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

// -----------------------------------------------------------------------------

// FlexFloat accepts a JSON number or a numeric string. Null and "" decode to 0.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, jsonNull) {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric string %q", s)
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("expected number, got %s", data)
	}
	*f = FlexFloat(v)
	return nil
}

// -----------------------------------------------------------------------------

// FlexTime accepts the calendar timestamps seen in summary data: RFC3339,
// "YYYY-MM-DD HH:MM:SS", "YYYY-MM-DD", or a number of epoch milliseconds.
// The zero value means the field was absent.
type FlexTime struct {
	time.Time
}

var flexTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (f *FlexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, jsonNull) {
		f.Time = time.Time{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			f.Time = time.Time{}
			return nil
		}
		for _, layout := range flexTimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				f.Time = t.UTC()
				return nil
			}
		}
		return fmt.Errorf("unrecognised timestamp %q", s)
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("expected timestamp, got %s", data)
	}
	f.Time = time.UnixMilli(ms).UTC()
	return nil
}

func (f FlexTime) MarshalJSON() ([]byte, error) {
	if f.IsZero() {
		return jsonNull, nil
	}
	return json.Marshal(f.Time.UTC().Format(time.RFC3339))
}
