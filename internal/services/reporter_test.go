package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benmeehan/locator/pkg/location"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReporter(at time.Time) *Reporter {
	r := NewReporter(2*time.Second, zerolog.Nop())
	r.now = func() time.Time { return at }
	return r
}

func TestReporter_Send_PostsPayloadWithSendTime(t *testing.T) {
	var body, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		contentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sendTime := time.UnixMilli(1700000005000)
	sample := location.Sample{
		Coords:    location.Coords{Latitude: 1.0, Longitude: 2.0},
		Timestamp: 1700000000000,
	}

	delivery, err := newTestReporter(sendTime).Send(context.Background(), sample, server.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, delivery.StatusCode)
	assert.Equal(t, int64(1700000005000), delivery.Timestamp)
	assert.Equal(t, "application/json", contentType)
	assert.JSONEq(t,
		`{"location":{"coords":{"latitude":1,"longitude":2},"timestamp":1700000000000},"timestamp":1700000005000}`,
		body)
}

func TestReporter_Send_EmptyURLMakesNoRequest(t *testing.T) {
	delivery, err := newTestReporter(time.Now()).Send(context.Background(), location.Sample{}, "   ")
	assert.ErrorIs(t, err, ErrNoURL)
	assert.Zero(t, delivery.StatusCode)
}

func TestReporter_Send_Non2xx(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	delivery, err := newTestReporter(time.Now()).Send(context.Background(), location.Sample{}, server.URL)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, http.StatusServiceUnavailable, delivery.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "no retry")
}

func TestReporter_Send_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestReporter(time.Now()).Send(context.Background(), location.Sample{}, url)
	assert.Error(t, err)
}
