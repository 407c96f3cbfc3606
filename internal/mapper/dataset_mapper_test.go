package mapper

import (
	"encoding/json"
	"testing"
	"time"

	"travel-intel/internal/entity"
	"travel-intel/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetMapperRoundTrip(t *testing.T) {
	m := NewDatasetMapper()
	produced := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	in := &entity.ConsolidatedDataset{
		DestinationID: "Santorini",
		Records: map[string]entity.Record{
			"sunset_cruise": {
				EntityID:     "sunset_cruise",
				Kind:         entity.KindTheme,
				QualityScore: 0.9,
				Payload:      map[string]any{"price_eur": 120},
				ContentHash:  "abc",
			},
		},
		DatasetHash:         "f00d",
		DerivedFromSessions: []string{"s1", "s2"},
		VersionSequence:     2,
		ProducedAt:          produced,
		LowQualityRecords:   1,
		SkippedSessions:     []string{"s0"},
	}

	row, err := m.ToModel(in)
	require.NoError(t, err)
	assert.Equal(t, "Santorini", row.DestinationId)
	assert.Equal(t, int64(2), row.VersionSequence)

	out, err := m.ToEntity(row)
	require.NoError(t, err)
	assert.Equal(t, in.DatasetHash, out.DatasetHash)
	assert.Equal(t, in.DerivedFromSessions, out.DerivedFromSessions)
	assert.Equal(t, in.SkippedSessions, out.SkippedSessions)
	assert.Nil(t, out.RejectedEntities)
	assert.Equal(t, json.Number("120"), out.Records["sunset_cruise"].Payload["price_eur"])
	assert.True(t, produced.Equal(out.ProducedAt))
}

func TestDatasetMapperCorruptRecords(t *testing.T) {
	_, err := NewDatasetMapper().ToEntity(&model.DatasetVersion{DestinationId: "x", Records: []byte("{")})
	assert.Error(t, err)
}

func TestDiffMapperRoundTrip(t *testing.T) {
	m := NewDatasetMapper()
	in := &entity.Diff{
		DestinationID: "Santorini",
		FromVersion:   1,
		ToVersion:     2,
		Changed:       []entity.DiffEntry{{EntityID: "sunset_cruise", OldContentHash: "a", NewContentHash: "b"}},
		CreatedAt:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	row, err := m.DiffToModel(in)
	require.NoError(t, err)

	out, err := m.DiffToEntity(row)
	require.NoError(t, err)
	assert.Equal(t, in.Changed, out.Changed)
	assert.Empty(t, out.Added)

	nilRow, err := m.DiffToModel(nil)
	require.NoError(t, err)
	assert.Nil(t, nilRow)
}
