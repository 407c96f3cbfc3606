package nats

import (
	"testing"

	"travel-intel/pkg/events"

	"github.com/stretchr/testify/assert"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "travel.SESSION_WRITTEN", Subject(events.TypeSessionWritten))
	assert.Equal(t, "travel.DATASET_CONSOLIDATED", Subject(events.TypeDatasetConsolidated))
}
