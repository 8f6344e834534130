package location

import "time"

// Coords holds the position part of a fix. Optional readings are nil when the
// provider cannot supply them and are left out of the JSON encoding.
type Coords struct {
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Altitude         *float64 `json:"altitude,omitempty"`
	Accuracy         *float64 `json:"accuracy,omitempty"`
	AltitudeAccuracy *float64 `json:"altitudeAccuracy,omitempty"`
	Heading          *float64 `json:"heading,omitempty"`
	Speed            *float64 `json:"speed,omitempty"` // meters per second
}

// Sample is a single location fix as produced by a Provider.
type Sample struct {
	Coords    Coords `json:"coords"`
	Timestamp int64  `json:"timestamp"` // fix time, milliseconds since epoch
}

// Float returns a pointer to v, for filling optional Coords fields.
func Float(v float64) *float64 {
	return &v
}

// millis converts t to milliseconds since epoch.
func millis(t time.Time) int64 {
	return t.UnixMilli()
}
