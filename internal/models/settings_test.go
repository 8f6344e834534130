package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettings_Merge(t *testing.T) {
	current := Settings{Enabled: false, URL: "https://x.test/r"}

	merged := current.Merge(SetEnabled(true))
	assert.Equal(t, Settings{Enabled: true, URL: "https://x.test/r"}, merged)

	merged = merged.Merge(SetURL(""))
	assert.Equal(t, Settings{Enabled: true}, merged)

	assert.Equal(t, current, current.Merge(SettingsUpdate{}))
}
