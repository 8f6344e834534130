package location

import (
	"context"
	"time"
)

// StaticProvider always reports the same configured position.
type StaticProvider struct {
	coords Coords
	now    func() time.Time
}

// NewStaticProvider returns a provider fixed at lat/lon. A zero accuracy is omitted from samples.
func NewStaticProvider(lat, lon, accuracy float64) *StaticProvider {
	coords := Coords{Latitude: lat, Longitude: lon}
	if accuracy > 0 {
		coords.Accuracy = Float(accuracy)
	}
	return &StaticProvider{coords: coords, now: time.Now}
}

func (s *StaticProvider) RequestPermission(context.Context) (Permission, error) {
	return PermissionGranted, nil
}

func (s *StaticProvider) PermissionStatus(context.Context) (Permission, error) {
	return PermissionGranted, nil
}

func (s *StaticProvider) GetCurrentFix(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	return Sample{Coords: s.coords, Timestamp: millis(s.now())}, nil
}

func (s *StaticProvider) Close() error {
	return nil
}
