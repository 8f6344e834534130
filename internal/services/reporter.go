package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benmeehan/locator/internal/models"
	http_utils "github.com/benmeehan/locator/pkg/httpUtils"
	"github.com/benmeehan/locator/pkg/location"
	"github.com/rs/zerolog"
)

var (
	// ErrNoURL is returned when no destination is configured; no request is made.
	ErrNoURL = errors.New("no report URL configured")
	// ErrUnexpectedStatus is returned when the endpoint answers outside 2xx.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// Reporter delivers location samples to the configured endpoint over HTTP.
type Reporter struct {
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewReporter creates a Reporter whose requests are bounded by timeout.
func NewReporter(timeout time.Duration, logger zerolog.Logger) *Reporter {
	return &Reporter{
		client: &http.Client{Timeout: timeout},
		logger: logger,
		now:    time.Now,
	}
}

// Send POSTs {location, timestamp} to url, with timestamp taken at send time.
// It makes a single attempt; the returned Delivery is filled in as far as the attempt got.
func (r *Reporter) Send(ctx context.Context, sample location.Sample, url string) (models.Delivery, error) {
	url = strings.TrimSpace(url)
	delivery := models.Delivery{URL: url}
	if url == "" {
		r.logger.Warn().Msg("Skipping location report, no URL configured")
		return delivery, ErrNoURL
	}

	payload := models.ReportPayload{
		Location:  sample,
		Timestamp: r.now().UnixMilli(),
	}
	delivery.Timestamp = payload.Timestamp

	// Serialize the report payload to JSON
	body, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to serialize location report")
		return delivery, err
	}

	status, err := http_utils.PostJSON(ctx, r.client, url, body)
	delivery.StatusCode = status
	if err != nil {
		r.logger.Error().Err(err).Str("url", url).Msg("Failed to send location report")
		return delivery, err
	}
	if status < 200 || status > 299 {
		r.logger.Error().Int("status", status).Str("url", url).Msg("Location report rejected by endpoint")
		return delivery, fmt.Errorf("%w: %d", ErrUnexpectedStatus, status)
	}

	r.logger.Info().
		Str("url", url).
		Int("status", status).
		Int64("timestamp", payload.Timestamp).
		Msg("Location report sent successfully")
	return delivery, nil
}
