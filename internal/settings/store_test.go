package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/benmeehan/locator/internal/constants"
	"github.com/benmeehan/locator/internal/models"
	"github.com/benmeehan/locator/pkg/file"
	"github.com/benmeehan/locator/pkg/kvstore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockKV struct {
	mock.Mock
}

func (m *mockKV) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockKV) Set(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *mockKV) Remove(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func newFileBackedStore(t *testing.T) (*Store, kvstore.Store) {
	t.Helper()
	kv, err := kvstore.NewFileStore(t.TempDir(), file.NewFileService())
	require.NoError(t, err)
	return NewStore(kv, zerolog.Nop()), kv
}

func TestStore_Get_DefaultsForMissingOrMalformed(t *testing.T) {
	ctx := context.Background()
	store, kv := newFileBackedStore(t)

	assert.Equal(t, models.Settings{}, store.Get(ctx))

	for _, blob := range []string{``, `{`, `null`, `[]`, `"enabled"`, `{"enabled":"yes"}`, `{"url":42}`} {
		require.NoError(t, kv.Set(ctx, constants.SettingsKey, []byte(blob)))
		assert.Equal(t, models.Settings{}, store.Get(ctx), "blob %q", blob)
	}
}

func TestStore_Get_ReadErrorFallsBack(t *testing.T) {
	kv := new(mockKV)
	kv.On("Get", mock.Anything, constants.SettingsKey).Return(nil, errors.New("disk on fire"))

	store := NewStore(kv, zerolog.Nop())
	assert.Equal(t, models.Settings{}, store.Get(context.Background()))
	kv.AssertExpectations(t)
}

func TestStore_Set_MergesWithExisting(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileBackedStore(t)

	_, err := store.Set(ctx, models.SetURL("https://x.test/r"))
	require.NoError(t, err)

	merged, err := store.Set(ctx, models.SetEnabled(true))
	require.NoError(t, err)
	assert.Equal(t, models.Settings{Enabled: true, URL: "https://x.test/r"}, merged)

	assert.Equal(t, merged, store.Get(ctx))
}

func TestStore_Set_PersistsJSONRecord(t *testing.T) {
	ctx := context.Background()
	store, kv := newFileBackedStore(t)

	_, err := store.Set(ctx, models.SetEnabled(true))
	require.NoError(t, err)

	raw, err := kv.Get(ctx, constants.SettingsKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"enabled":true}`, string(raw))
}

func TestStore_Set_WriteError(t *testing.T) {
	kv := new(mockKV)
	kv.On("Get", mock.Anything, constants.SettingsKey).Return(nil, kvstore.ErrNotFound)
	kv.On("Set", mock.Anything, constants.SettingsKey, mock.Anything).Return(errors.New("read-only"))

	store := NewStore(kv, zerolog.Nop())
	_, err := store.Set(context.Background(), models.SetEnabled(true))
	assert.EqualError(t, err, "read-only")
	kv.AssertExpectations(t)
}
