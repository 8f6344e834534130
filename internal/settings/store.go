package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/benmeehan/locator/internal/constants"
	"github.com/benmeehan/locator/internal/models"
	"github.com/benmeehan/locator/pkg/kvstore"
	"github.com/rs/zerolog"
)

// Store reads and writes the single settings record.
type Store struct {
	kv     kvstore.Store
	logger zerolog.Logger
}

// NewStore returns a settings store backed by kv.
func NewStore(kv kvstore.Store, logger zerolog.Logger) *Store {
	return &Store{kv: kv, logger: logger}
}

// Get returns the persisted settings. A missing, unreadable or corrupt record
// yields the defaults; the failure is logged and never returned.
func (s *Store) Get(ctx context.Context) models.Settings {
	data, err := s.kv.Get(ctx, constants.SettingsKey)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			s.logger.Error().Err(err).Msg("Failed to read settings, using defaults")
		}
		return models.Settings{}
	}

	var settings models.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		s.logger.Warn().Err(err).Msg("Stored settings are corrupt, using defaults")
		return models.Settings{}
	}
	return settings
}

// Set merges update into the current record, persists it and returns the result.
// Concurrent writers are last-writer-wins.
func (s *Store) Set(ctx context.Context, update models.SettingsUpdate) (models.Settings, error) {
	merged := s.Get(ctx).Merge(update)

	data, err := json.Marshal(merged)
	if err != nil {
		return models.Settings{}, fmt.Errorf("failed to serialize settings: %w", err)
	}
	if err := s.kv.Set(ctx, constants.SettingsKey, data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist settings")
		return models.Settings{}, err
	}

	s.logger.Debug().
		Bool("enabled", merged.Enabled).
		Str("url", merged.URL).
		Msg("Settings saved")
	return merged, nil
}
