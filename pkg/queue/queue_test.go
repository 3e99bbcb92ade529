package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nordicgov/citizenship-review/pkg/domain"
)

type fakeStore struct {
	cases   []domain.Case
	updated map[string]float64
}

func (f *fakeStore) ListPendingManual(ctx context.Context) ([]domain.Case, error) {
	out := make([]domain.Case, len(f.cases))
	copy(out, f.cases)
	return out, nil
}

func (f *fakeStore) UpdatePriorityScore(ctx context.Context, caseID string, score float64) error {
	if f.updated == nil {
		f.updated = map[string]float64{}
	}
	f.updated[caseID] = score
	return nil
}

func tp(t time.Time) *time.Time { return &t }

func TestList_OrdersOverdueFirstThenByPriority(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	queuedAt := now.AddDate(0, 0, -10)

	overdueDue := now.AddDate(0, 0, -1)
	notOverdueDue := now.AddDate(0, 0, 5)

	s := &fakeStore{cases: []domain.Case{
		{ID: "low-priority-fresh", ConfidenceScore: 0.90, QueuedAt: tp(queuedAt), SLADueAt: tp(notOverdueDue), CreatedAt: queuedAt},
		{ID: "overdue", ConfidenceScore: 0.40, QueuedAt: tp(queuedAt), SLADueAt: tp(overdueDue), CreatedAt: queuedAt},
		{ID: "high-priority-not-overdue", ConfidenceScore: 0.10, QueuedAt: tp(queuedAt), SLADueAt: tp(notOverdueDue), CreatedAt: queuedAt},
	}}

	q := New(s, 20, 70)
	items, total, err := q.List(context.Background(), Pagination{}, now)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Equal(t, "overdue", items[0].Case.ID)
	require.True(t, items[0].IsOverdue)
}

func TestList_PaginatesWithOffsetAndLimit(t *testing.T) {
	now := time.Now().UTC()
	var cases []domain.Case
	for i := 0; i < 5; i++ {
		cases = append(cases, domain.Case{ID: string(rune('a' + i)), QueuedAt: tp(now), CreatedAt: now})
	}
	s := &fakeStore{cases: cases}
	q := New(s, 20, 70)

	items, total, err := q.List(context.Background(), Pagination{Offset: 2, Limit: 2}, now)
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Len(t, items, 2)
}

func TestMetrics_ComputesBacklogEstimate(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	queuedAt := now.AddDate(0, 0, -7)
	due := now.AddDate(0, 0, -1)

	s := &fakeStore{cases: []domain.Case{
		{ID: "c1", ConfidenceScore: 0.1, QueuedAt: tp(queuedAt), SLADueAt: tp(due), CreatedAt: queuedAt},
		{ID: "c2", ConfidenceScore: 0.9, QueuedAt: tp(queuedAt), SLADueAt: tp(now.AddDate(0, 0, 10)), CreatedAt: queuedAt},
	}}
	q := New(s, 1, 70)

	m, err := q.Metrics(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 2, m.PendingManualCount)
	require.Equal(t, 1, m.OverdueCount)
	require.Equal(t, 2, m.EstimatedDaysToClearBacklog)
	require.InDelta(t, 7.0, m.AvgWaitingDays, 0.01)
}

func TestMetrics_EmptyQueueHasZeroBacklogDays(t *testing.T) {
	s := &fakeStore{}
	q := New(s, 20, 70)
	m, err := q.Metrics(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 0, m.PendingManualCount)
	require.Equal(t, 0, m.EstimatedDaysToClearBacklog)
}
