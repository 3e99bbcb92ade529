// Package queue implements the reviewer-facing Review Queue: ordering and
// metrics over the set of Cases awaiting a manual decision. Priority scoring
// and SLA windows live in pkg/priority so the Pipeline Orchestrator and this
// package share one implementation of spec.md §4.5's arithmetic.
package queue

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/nordicgov/citizenship-review/pkg/domain"
	"github.com/nordicgov/citizenship-review/pkg/priority"
)

// CaseStore is the subset of the Case Store the Review Queue reads from.
type CaseStore interface {
	ListPendingManual(ctx context.Context) ([]domain.Case, error)
	UpdatePriorityScore(ctx context.Context, caseID string, score float64) error
}

// Item is one row of list_review_queue: a Case plus its recomputed,
// read-time priority standing.
type Item struct {
	Case       domain.Case
	IsOverdue  bool
	WaitingFor time.Duration
}

// Pagination bounds a list_review_queue read.
type Pagination struct {
	Offset int
	Limit  int
}

// Metrics is queue_metrics' output shape.
type Metrics struct {
	PendingManualCount          int
	OverdueCount                int
	HighPriorityCount           int
	AvgWaitingDays              float64
	DailyManualCapacity         int
	EstimatedDaysToClearBacklog int
}

// Queue computes the review queue view over a CaseStore.
type Queue struct {
	store               CaseStore
	dailyManualCapacity int
	highPriorityThresh  float64
}

// New builds a Queue. dailyManualCapacity and highPriorityThreshold come
// from config (spec.md §6 defaults: 20 and 70).
func New(store CaseStore, dailyManualCapacity int, highPriorityThreshold float64) *Queue {
	if dailyManualCapacity <= 0 {
		dailyManualCapacity = 20
	}
	if highPriorityThreshold <= 0 {
		highPriorityThreshold = 70
	}
	return &Queue{store: store, dailyManualCapacity: dailyManualCapacity, highPriorityThresh: highPriorityThreshold}
}

// List returns the pending-manual set ordered by
// (is_overdue DESC, priority_score DESC, sla_due_at ASC, created_at ASC),
// recomputing priority_score for every item as it reads them (spec.md §4.5).
func (q *Queue) List(ctx context.Context, p Pagination, now time.Time) ([]Item, int, error) {
	cases, err := q.store.ListPendingManual(ctx)
	if err != nil {
		return nil, 0, err
	}

	items := make([]Item, 0, len(cases))
	for i := range cases {
		c := &cases[i]
		q.recompute(ctx, c, now)
		items = append(items, Item{
			Case:       *c,
			IsOverdue:  isOverdue(c, now),
			WaitingFor: waitingFor(c, now),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.IsOverdue != b.IsOverdue {
			return a.IsOverdue // overdue first
		}
		if a.Case.PriorityScore != b.Case.PriorityScore {
			return a.Case.PriorityScore > b.Case.PriorityScore
		}
		if !sameTimePtr(a.Case.SLADueAt, b.Case.SLADueAt) {
			return lessTimePtr(a.Case.SLADueAt, b.Case.SLADueAt)
		}
		return a.Case.CreatedAt.Before(b.Case.CreatedAt)
	})

	total := len(items)
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	start := p.Offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], total, nil
}

// Metrics computes queue_metrics (spec.md §4.5).
func (q *Queue) Metrics(ctx context.Context, now time.Time) (Metrics, error) {
	cases, err := q.store.ListPendingManual(ctx)
	if err != nil {
		return Metrics{}, err
	}

	var (
		overdue      int
		highPriority int
		waitSumDays  float64
	)
	for i := range cases {
		c := &cases[i]
		q.recompute(ctx, c, now)
		if isOverdue(c, now) {
			overdue++
		}
		if c.PriorityScore >= q.highPriorityThresh {
			highPriority++
		}
		waitSumDays += waitingFor(c, now).Hours() / 24
	}

	pending := len(cases)
	avgWaiting := 0.0
	if pending > 0 {
		avgWaiting = waitSumDays / float64(pending)
	}

	return Metrics{
		PendingManualCount:          pending,
		OverdueCount:                overdue,
		HighPriorityCount:           highPriority,
		AvgWaitingDays:              avgWaiting,
		DailyManualCapacity:         q.dailyManualCapacity,
		EstimatedDaysToClearBacklog: int(math.Ceil(float64(pending) / float64(q.dailyManualCapacity))),
	}, nil
}

// recompute refreshes c.PriorityScore in place and best-effort persists it;
// a persistence failure does not block serving the (still-correct) read.
func (q *Queue) recompute(ctx context.Context, c *domain.Case, now time.Time) {
	queuedAt := c.CreatedAt
	if c.QueuedAt != nil {
		queuedAt = *c.QueuedAt
	}
	c.PriorityScore = priority.Score(c.ConfidenceScore, queuedAt, c.SLADueAt, now)
	_ = q.store.UpdatePriorityScore(ctx, c.ID, c.PriorityScore)
}

func isOverdue(c *domain.Case, now time.Time) bool {
	return c.SLADueAt != nil && now.After(*c.SLADueAt)
}

func waitingFor(c *domain.Case, now time.Time) time.Duration {
	queuedAt := c.CreatedAt
	if c.QueuedAt != nil {
		queuedAt = *c.QueuedAt
	}
	return now.Sub(queuedAt)
}

func sameTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func lessTimePtr(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.Before(*b)
}
