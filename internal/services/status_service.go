package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/locator/internal/models"
	"github.com/benmeehan/locator/pkg/mqtt"
	"github.com/rs/zerolog"
)

// StatusService publishes workflow outcomes to an MQTT topic.
type StatusService struct {
	// Configuration fields
	topic   string
	qos     int
	timeout time.Duration

	// Dependencies
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewStatusService creates a StatusService. timeout bounds connect and each publish.
func NewStatusService(topic string, qos int, timeout time.Duration, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *StatusService {
	return &StatusService{
		topic:      topic,
		qos:        qos,
		timeout:    timeout,
		mqttClient: mqttClient,
		logger:     logger,
	}
}

// Start connects to the broker.
func (s *StatusService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn().Msg("StatusService is already running")
		return errors.New("status service is already running")
	}

	token := s.mqttClient.Connect()
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("timed out connecting to MQTT broker after %s", s.timeout)
	}
	if err := token.Error(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to connect to MQTT broker")
		return err
	}

	s.running = true
	s.logger.Info().Str("topic", s.topic).Int("qos", s.qos).Msg("StatusService started")
	return nil
}

// Stop disconnects from the broker.
func (s *StatusService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Warn().Msg("StatusService is not running")
		return errors.New("status service is not running")
	}

	s.mqttClient.Disconnect(250)
	s.running = false
	s.logger.Info().Msg("StatusService stopped")
	return nil
}

// Observe publishes outcome. Failures are logged; the workflow never waits on the broker longer than timeout.
func (s *StatusService) Observe(outcome models.Outcome) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return
	}

	payload, err := json.Marshal(outcome)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to serialize outcome")
		return
	}

	token := s.mqttClient.Publish(s.topic, byte(s.qos), false, payload)
	if !token.WaitTimeout(s.timeout) {
		s.logger.Warn().Str("topic", s.topic).Msg("Timed out publishing outcome")
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Error().Err(err).Str("topic", s.topic).Msg("Failed to publish outcome to MQTT")
		return
	}

	s.logger.Debug().Str("run_id", outcome.RunID).Str("topic", s.topic).Msg("Outcome published")
}
