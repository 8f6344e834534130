package models

import (
	"github.com/benmeehan/locator/pkg/location"
)

// ReportPayload is the body POSTed to the configured endpoint.
type ReportPayload struct {
	Location  location.Sample `json:"location"`
	Timestamp int64           `json:"timestamp"` // send time, milliseconds since epoch
}
