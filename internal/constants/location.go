package constants

import "time"

const (
	// ShareLocationTaskID names the background task that reports the device location.
	ShareLocationTaskID = "share-location"
	// ShareLocationMinimumInterval is the floor between background wake-ups.
	ShareLocationMinimumInterval = 10 * time.Minute

	// SettingsKey is the storage key of the persisted settings record.
	SettingsKey = "settings"
)

// User-facing status lines.
const (
	StatusLocating         = "Locating you..."
	StatusDisabled         = "Location sharing is disabled"
	StatusPermissionDenied = "Permission to access location was denied! Please go to settings and enable location sharing for this app."
	StatusFixUnavailable   = "Unable to determine your location"
	StatusBusy             = "A location report is already in progress"
	StatusCoordinatesFmt   = "Latitude: %v, Longitude: %v"
)
