package domain

import (
	"encoding/json"
	"time"
)

// Latency is a measured probe round trip. It encodes to JSON as
// fractional milliseconds.
type Latency time.Duration

// Duration returns the underlying time.Duration
func (l Latency) Duration() time.Duration {
	return time.Duration(l)
}

// Milliseconds returns the round trip in fractional milliseconds
func (l Latency) Milliseconds() float64 {
	return float64(l) / float64(time.Millisecond)
}

// MarshalJSON implements json.Marshaler
func (l Latency) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Milliseconds())
}

// UnmarshalJSON implements json.Unmarshaler
func (l *Latency) UnmarshalJSON(data []byte) error {
	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	*l = Latency(ms * float64(time.Millisecond))
	return nil
}

// LatenciesFrom converts a tracker's duration map for rendering
func LatenciesFrom(in map[string]time.Duration) map[string]Latency {
	out := make(map[string]Latency, len(in))
	for id, d := range in {
		out[id] = Latency(d)
	}
	return out
}
