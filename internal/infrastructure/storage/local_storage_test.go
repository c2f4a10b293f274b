package storage_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/flow-api/internal/domain/flow"
	"github.com/janhq/flow-api/internal/infrastructure/storage"
)

func newLocal(t *testing.T) *storage.LocalStorage {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestLocalStorage_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	f := flow.New("Morning routine")
	sec := f.AddSection("Kitchen")
	_, err := f.AddStep(sec.ID, "Boil water")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, f))

	loaded, err := s.Load(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.Title, loaded.Title)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, "Boil water", loaded.Steps[0].Description)
	assert.Equal(t, sec.ID, loaded.Steps[0].SectionID)
}

func TestLocalStorage_LoadMissing(t *testing.T) {
	s := newLocal(t)
	_, err := s.Load(context.Background(), "flw_missing")
	assert.ErrorIs(t, err, flow.ErrNotFound)

	_, err = s.Load(context.Background(), "../etc")
	assert.ErrorIs(t, err, flow.ErrNotFound)
}

func TestLocalStorage_Assets(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	rel, err := s.PutAsset(ctx, "flw_1", "stp_1__tts__alloy.mp3", []byte("audio"), "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "stp_1__tts__alloy.mp3", rel)
	assert.True(t, s.Exists(ctx, s.AbsolutePath("flw_1", rel)))

	require.NoError(t, s.DeleteAsset(ctx, "flw_1", rel))
	assert.False(t, s.Exists(ctx, s.AbsolutePath("flw_1", rel)))
	require.NoError(t, s.DeleteAsset(ctx, "flw_1", rel), "deleting a missing asset is not an error")

	_, err = s.PutAsset(ctx, "flw_1", "../escape.mp3", []byte("x"), "audio/mpeg")
	assert.Error(t, err)
}
