package services

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/benmeehan/locator/internal/models"
	mqttLib "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockToken is a mock implementation of the mqtt.Token interface
type MockToken struct {
	mock.Mock
}

func (m *MockToken) Wait() bool {
	return m.Called().Bool(0)
}

func (m *MockToken) WaitTimeout(timeout time.Duration) bool {
	return m.Called(timeout).Bool(0)
}

func (m *MockToken) Done() <-chan struct{} {
	return m.Called().Get(0).(<-chan struct{})
}

func (m *MockToken) Error() error {
	return m.Called().Error(0)
}

// MockMQTTClient is a mock implementation of the MQTTClient interface
type MockMQTTClient struct {
	mock.Mock
}

func (m *MockMQTTClient) Connect() mqttLib.Token {
	return m.Called().Get(0).(mqttLib.Token)
}

func (m *MockMQTTClient) IsConnected() bool {
	return m.Called().Bool(0)
}

func (m *MockMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqttLib.Token {
	return m.Called(topic, qos, retained, payload).Get(0).(mqttLib.Token)
}

func (m *MockMQTTClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

func okToken() *MockToken {
	token := new(MockToken)
	token.On("WaitTimeout", mock.Anything).Return(true)
	token.On("Error").Return(nil)
	return token
}

func TestStatusService_StartStop(t *testing.T) {
	client := new(MockMQTTClient)
	client.On("Connect").Return(okToken())
	client.On("Disconnect", uint(250)).Return()

	s := NewStatusService("locator/status", 1, time.Second, client, zerolog.Nop())

	require.NoError(t, s.Start())
	assert.EqualError(t, s.Start(), "status service is already running")
	require.NoError(t, s.Stop())
	assert.EqualError(t, s.Stop(), "status service is not running")
	client.AssertExpectations(t)
}

func TestStatusService_StartConnectError(t *testing.T) {
	token := new(MockToken)
	token.On("WaitTimeout", time.Second).Return(true)
	token.On("Error").Return(errors.New("connection refused"))

	client := new(MockMQTTClient)
	client.On("Connect").Return(token)

	s := NewStatusService("locator/status", 1, time.Second, client, zerolog.Nop())
	assert.EqualError(t, s.Start(), "connection refused")
}

func TestStatusService_StartTimeout(t *testing.T) {
	token := new(MockToken)
	token.On("WaitTimeout", time.Second).Return(false)

	client := new(MockMQTTClient)
	client.On("Connect").Return(token)

	s := NewStatusService("locator/status", 1, time.Second, client, zerolog.Nop())
	assert.Error(t, s.Start())
}

func TestStatusService_ObservePublishesOutcome(t *testing.T) {
	client := new(MockMQTTClient)
	client.On("Connect").Return(okToken())

	var published []byte
	client.On("Publish", "locator/status", byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(3).([]byte) }).
		Return(okToken())

	s := NewStatusService("locator/status", 1, time.Second, client, zerolog.Nop())
	require.NoError(t, s.Start())

	s.Observe(models.Outcome{RunID: "run-1", Trigger: models.TriggerBackground, State: "idle"})

	var got models.Outcome
	require.NoError(t, json.Unmarshal(published, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, models.TriggerBackground, got.Trigger)
}

func TestStatusService_ObserveBeforeStartIsIgnored(t *testing.T) {
	client := new(MockMQTTClient)
	s := NewStatusService("locator/status", 1, time.Second, client, zerolog.Nop())

	s.Observe(models.Outcome{RunID: "run-1"})
	client.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
