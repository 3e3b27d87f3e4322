package reading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Field names of the helmet payload
const (
	FieldPersonID    = "person_id"
	FieldTimestamp   = "timestamp"
	FieldMQ7         = "mq7"
	FieldMQ2         = "mq2"
	FieldTemperature = "temperature"
	FieldPressure    = "pressure"
	FieldHumidity    = "humidity"
	FieldAltitude    = "altitude"
	FieldLatitude    = "latitude"
	FieldLongitude   = "longitude"
)

// TimestampLayout is the canonical encoding of the server-assigned timestamp
const TimestampLayout = time.RFC3339Nano

// Flag is a binary gas alert flag (0/1)
type Flag int

// Set reports whether the sensor raised its alert
func (f Flag) Set() bool { return f == 1 }

// Reading is one telemetry sample from a helmet.
//
// The typed fields are views over the original payload. The payload itself is
// kept as received so that unknown fields are written back untouched.
type Reading struct {
	PersonID  string
	Timestamp time.Time

	MQ7 Flag
	MQ2 Flag

	Temperature *float64
	Pressure    *float64
	Humidity    *float64
	Altitude    *float64
	Latitude    *float64
	Longitude   *float64

	raw map[string]json.RawMessage
}

// Parse decodes a single JSON object into a Reading. It does not require a
// person id; use Validate for inbound data.
func Parse(data []byte) (Reading, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Reading{}, ErrNoData
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrNoData, err)
	}
	if raw == nil {
		return Reading{}, ErrNoData
	}

	r := Reading{raw: raw}
	r.PersonID = personIDFrom(raw[FieldPersonID])
	r.Timestamp = timestampFrom(raw[FieldTimestamp])
	r.MQ7 = flagFrom(raw[FieldMQ7])
	r.MQ2 = flagFrom(raw[FieldMQ2])
	r.Temperature = floatFrom(raw[FieldTemperature])
	r.Pressure = floatFrom(raw[FieldPressure])
	r.Humidity = floatFrom(raw[FieldHumidity])
	r.Altitude = floatFrom(raw[FieldAltitude])
	r.Latitude = floatFrom(raw[FieldLatitude])
	r.Longitude = floatFrom(raw[FieldLongitude])
	return r, nil
}

// Empty reports whether the payload carried no fields at all
func (r Reading) Empty() bool {
	return len(r.raw) == 0 && r.PersonID == ""
}

// Stamp returns a copy of r with its timestamp replaced by t
func (r Reading) Stamp(t time.Time) Reading {
	raw := make(map[string]json.RawMessage, len(r.raw)+1)
	for k, v := range r.raw {
		raw[k] = v
	}
	encoded, _ := json.Marshal(t.Format(TimestampLayout))
	raw[FieldTimestamp] = encoded

	r.raw = raw
	r.Timestamp = t
	return r
}

// Field returns the raw JSON of a payload field
func (r Reading) Field(name string) (json.RawMessage, bool) {
	v, ok := r.raw[name]
	return v, ok
}

// MarshalJSON writes the payload back as it was received, with the stamped
// timestamp.
func (r Reading) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.raw)+2)
	for k, v := range r.raw {
		out[k] = v
	}
	if _, ok := out[FieldPersonID]; !ok && r.PersonID != "" {
		encoded, err := json.Marshal(r.PersonID)
		if err != nil {
			return nil, err
		}
		out[FieldPersonID] = encoded
	}
	if !r.Timestamp.IsZero() {
		if _, ok := out[FieldTimestamp]; !ok {
			encoded, err := json.Marshal(r.Timestamp.Format(TimestampLayout))
			if err != nil {
				return nil, err
			}
			out[FieldTimestamp] = encoded
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. A JSON null leaves r unchanged.
func (r *Reading) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func decodeScalar(raw json.RawMessage) (interface{}, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// personIDFrom normalises the identifier. Falsy values (null, "", 0, false)
// and non-scalar values count as missing.
func personIDFrom(raw json.RawMessage) string {
	v, ok := decodeScalar(raw)
	if !ok {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		if f, err := id.Float64(); err == nil && f == 0 {
			return ""
		}
		return id.String()
	case bool:
		if id {
			return "true"
		}
	}
	return ""
}

func timestampFrom(raw json.RawMessage) time.Time {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}
	}
	ts, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func flagFrom(raw json.RawMessage) Flag {
	v, ok := decodeScalar(raw)
	if !ok {
		return 0
	}
	switch f := v.(type) {
	case bool:
		if f {
			return 1
		}
	case json.Number:
		if n, err := f.Float64(); err == nil && n == 1 {
			return 1
		}
	case string:
		if n, err := strconv.ParseFloat(f, 64); err == nil && n == 1 {
			return 1
		}
	}
	return 0
}

func floatFrom(raw json.RawMessage) *float64 {
	v, ok := decodeScalar(raw)
	if !ok {
		return nil
	}
	var n float64
	var err error
	switch f := v.(type) {
	case json.Number:
		n, err = f.Float64()
	case string:
		n, err = strconv.ParseFloat(f, 64)
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return &n
}
