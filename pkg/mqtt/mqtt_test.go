package mqtt

import (
	"path/filepath"
	"testing"

	"github.com/benmeehan/locator/pkg/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMqttService_Configure(t *testing.T) {
	s := NewMqttService(file.NewFileService())

	require.NoError(t, s.Configure("tcp://localhost:1883", "locator-test", ""))
	assert.False(t, s.IsConnected())
}

func TestMqttService_ConfigureErrors(t *testing.T) {
	fs := file.NewFileService()
	s := NewMqttService(fs)

	assert.Error(t, s.Configure("", "locator-test", ""))
	assert.Error(t, s.Configure("ssl://localhost:8883", "locator-test", filepath.Join(t.TempDir(), "missing.pem")))

	bogus := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, fs.WriteFileRaw(bogus, []byte("not a certificate")))
	assert.EqualError(t, s.Configure("ssl://localhost:8883", "locator-test", bogus), "failed to append CA certificate")

	assert.False(t, s.IsConnected())
}
