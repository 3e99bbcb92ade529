package priority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nordicgov/citizenship-review/pkg/domain"
)

func TestDueAt_VariesByRiskLevel(t *testing.T) {
	w := SLAWindow{LowDays: 21, MediumDays: 14, HighDays: 7}
	queuedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.Equal(t, queuedAt.AddDate(0, 0, 21), w.DueAt(domain.RiskLow, queuedAt))
	require.Equal(t, queuedAt.AddDate(0, 0, 14), w.DueAt(domain.RiskMedium, queuedAt))
	require.Equal(t, queuedAt.AddDate(0, 0, 7), w.DueAt(domain.RiskHigh, queuedAt))
}

func TestScore_ThinHighRiskCaseScoresHigh(t *testing.T) {
	queuedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := queuedAt.AddDate(0, 0, 7)
	now := queuedAt

	score := Score(0.20, queuedAt, &due, now)
	require.GreaterOrEqual(t, score, 70.0)
}

func TestScore_OverdueAddsWeight(t *testing.T) {
	queuedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := queuedAt.AddDate(0, 0, 7)
	notOverdue := Score(0.80, queuedAt, &due, queuedAt.AddDate(0, 0, 1))
	overdue := Score(0.80, queuedAt, &due, queuedAt.AddDate(0, 0, 8))
	require.Greater(t, overdue, notOverdue)
}

func TestScore_ClampedToRange(t *testing.T) {
	queuedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := queuedAt.AddDate(0, 0, 7)
	now := queuedAt.AddDate(0, 0, 90)
	score := Score(-1, queuedAt, &due, now)
	require.GreaterOrEqual(t, score, 0.0)
	require.LessOrEqual(t, score, 100.0)
}
