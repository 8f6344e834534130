package location

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"
)

// GoogleGeolocationProvider uses the Google Maps API to get location data.
type GoogleGeolocationProvider struct {
	client     *maps.Client // nil when no API key is configured
	modemIndex int
	logger     zerolog.Logger

	scanWiFi  func(ctx context.Context) ([]maps.WiFiAccessPoint, error)
	scanCells func(ctx context.Context, modemIndex int) ([]maps.CellTower, error)
	now       func() time.Time
}

// NewGoogleGeolocationProvider creates a new GoogleGeolocationProvider instance.
// An empty apiKey yields a provider whose permission is always denied.
func NewGoogleGeolocationProvider(apiKey string, modemIndex int, logger zerolog.Logger, opts ...maps.ClientOption) (*GoogleGeolocationProvider, error) {
	p := &GoogleGeolocationProvider{
		modemIndex: modemIndex,
		logger:     logger,
		scanWiFi:   getWiFiAccessPoints,
		scanCells:  getCellTowers,
		now:        time.Now,
	}
	if apiKey == "" {
		return p, nil
	}

	c, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, err
	}
	p.client = c
	return p, nil
}

// RequestPermission grants access when the API client is configured.
func (g *GoogleGeolocationProvider) RequestPermission(ctx context.Context) (Permission, error) {
	return g.PermissionStatus(ctx)
}

// PermissionStatus grants access when the API client is configured.
func (g *GoogleGeolocationProvider) PermissionStatus(_ context.Context) (Permission, error) {
	if g.client == nil {
		return PermissionDenied, nil
	}
	return PermissionGranted, nil
}

// GetCurrentFix retrieves the device's location using Google Maps Geolocation API.
// Wi-Fi and cell scans are best effort; without them the request falls back to IP.
func (g *GoogleGeolocationProvider) GetCurrentFix(ctx context.Context) (Sample, error) {
	if g.client == nil {
		return Sample{}, ErrPermissionDenied
	}

	// Prepare the geolocation request with available data
	req := &maps.GeolocationRequest{ConsiderIP: true}

	wifiAPs, err := g.scanWiFi(ctx)
	if err != nil {
		g.logger.Debug().Err(err).Msg("Wi-Fi scan unavailable, continuing without access points")
	} else {
		req.WiFiAccessPoints = wifiAPs
	}

	cellTowers, err := g.scanCells(ctx, g.modemIndex)
	if err != nil {
		g.logger.Debug().Err(err).Msg("Cell scan unavailable, continuing without cell towers")
	} else {
		req.CellTowers = cellTowers
	}

	resp, err := g.client.Geolocate(ctx, req) // Send the geolocation request
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrFixUnavailable, err)
	}

	return Sample{
		Coords: Coords{
			Latitude:  resp.Location.Lat,
			Longitude: resp.Location.Lng,
			Accuracy:  Float(resp.Accuracy),
		},
		Timestamp: millis(g.now()),
	}, nil
}

// Close is a no-op; the maps client holds no connections of its own.
func (g *GoogleGeolocationProvider) Close() error {
	return nil
}
