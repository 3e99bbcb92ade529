package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFieldBag_ValueRejectsNegativeEntityRichness(t *testing.T) {
	f := FieldBag{EntityRichness: -0.5}
	_, err := f.Value()
	require.Error(t, err)
}

func TestFieldBag_ValueAcceptsWellFormedBag(t *testing.T) {
	f := FieldBag{
		Dates:          []string{"2024-01-01"},
		Nationalities:  []string{"Norwegian"},
		EntityRichness: 0.42,
	}
	raw, err := f.Value()
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	var roundTripped FieldBag
	require.NoError(t, roundTripped.Scan(raw))
	require.Equal(t, f.Dates, roundTripped.Dates)
	require.Equal(t, f.EntityRichness, roundTripped.EntityRichness)
}

func TestEvidence_ValueRoundTrips(t *testing.T) {
	e := Evidence{DocumentIDs: []string{"d1", "d2"}, Entities: []string{"Ola Nordmann"}}
	raw, err := e.Value()
	require.NoError(t, err)

	var roundTripped Evidence
	require.NoError(t, roundTripped.Scan(raw))
	require.Equal(t, e.DocumentIDs, roundTripped.DocumentIDs)
	require.Equal(t, e.Entities, roundTripped.Entities)
}

func TestMetadata_ValueRoundTrips(t *testing.T) {
	m := Metadata{"reason": "missing passport", "count": float64(3)}
	raw, err := m.Value()
	require.NoError(t, err)

	var roundTripped Metadata
	require.NoError(t, roundTripped.Scan(raw))
	require.Equal(t, m["reason"], roundTripped["reason"])
}

func TestCanTransition_OnlyAllowsDeclaredEdges(t *testing.T) {
	require.True(t, CanTransition(StatusDraft, StatusDocumentsUploaded))
	require.True(t, CanTransition(StatusQueued, StatusProcessing))
	require.False(t, CanTransition(StatusQueued, StatusQueued))
	require.False(t, CanTransition(StatusApproved, StatusQueued))
}

func TestIsTerminal(t *testing.T) {
	require.True(t, IsTerminal(StatusApproved))
	require.True(t, IsTerminal(StatusRejected))
	require.False(t, IsTerminal(StatusReviewReady))
}

func TestFieldBag_TotalDistinctEntitiesDedupesAcrossKeys(t *testing.T) {
	f := FieldBag{
		Dates:         []string{"2024-01-01", "2024-01-01"},
		Nationalities: []string{"Norwegian"},
		Persons:       []string{"Ola Nordmann"},
	}
	require.Equal(t, 3, f.TotalDistinctEntities())
}
