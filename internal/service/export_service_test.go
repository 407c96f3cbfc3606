package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportService(t *testing.T) {
	f := newFixture(t)
	export := NewExportService(f.datasets)
	ctx := context.Background()

	_, err := export.Latest(ctx, dest)
	assert.ErrorIs(t, err, ErrDatasetNotFound)

	f.write(t, "s1", t0, theme("a", 0.7, map[string]any{"n": 1}))
	f.consolidate(t)
	f.write(t, "s2", t0.Add(time.Hour), theme("b", 0.7, map[string]any{"n": 2}))
	f.consolidate(t)

	latest, err := export.Latest(ctx, dest)
	require.NoError(t, err)
	assert.True(t, latest.Manifest.IsLatest)
	assert.Equal(t, int64(2), latest.Manifest.VersionSequence)
	assert.Equal(t, 2, latest.Manifest.RecordCount)

	v1, err := export.Version(ctx, dest, 1)
	require.NoError(t, err)
	assert.False(t, v1.Manifest.IsLatest)
	assert.Equal(t, []string{"a"}, v1.Dataset.EntityIDs())

	_, err = export.Version(ctx, dest, 9)
	assert.ErrorIs(t, err, ErrDatasetNotFound)

	manifests, err := export.Manifests(ctx, dest)
	require.NoError(t, err)
	require.Len(t, manifests, 2)
	assert.Equal(t, int64(2), manifests[0].VersionSequence)
	assert.True(t, manifests[0].IsLatest)
	assert.False(t, manifests[1].IsLatest)

	destinations, err := export.Destinations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{dest}, destinations)
}
