package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nordicgov/citizenship-review/pkg/domain"
)

type fakeStore struct {
	cases        map[string]*domain.Case
	results      map[string][]domain.RuleResult
	fallbackHits []string
}

func (f *fakeStore) GetCase(ctx context.Context, caseID string) (*domain.Case, error) {
	c, ok := f.cases[caseID]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func (f *fakeStore) ReadBreakdown(ctx context.Context, caseID string) ([]domain.RuleResult, error) {
	return f.results[caseID], nil
}

func (f *fakeStore) AppendAudit(ctx context.Context, caseID, action, actorID, reason string, metadata domain.Metadata) error {
	f.fallbackHits = append(f.fallbackHits, action)
	return nil
}

type stubGenerator struct {
	explainJSON   []byte
	explainErr    error
	recommendJSON []byte
	recommendErr  error
}

func (g *stubGenerator) Explain(ctx context.Context, c domain.Case, results []domain.RuleResult) ([]byte, error) {
	return g.explainJSON, g.explainErr
}

func (g *stubGenerator) Recommend(ctx context.Context, c domain.Case, results []domain.RuleResult) ([]byte, error) {
	return g.recommendJSON, g.recommendErr
}

func sampleStore() *fakeStore {
	return &fakeStore{
		cases: map[string]*domain.Case{
			"c1": {ID: "c1", RiskLevel: domain.RiskHigh, ConfidenceScore: 0.42},
		},
		results: map[string][]domain.RuleResult{
			"c1": {
				{RuleCode: "identity_document_presence", RuleName: "Identity Document Presence", Passed: true, Weight: 0.2},
				{RuleCode: "residency_duration", RuleName: "Residency Duration", Passed: false, Weight: 0.25, Rationale: "no residency proof found"},
				{RuleCode: "language_proficiency", RuleName: "Language Proficiency", Passed: false, Weight: 0.15, Rationale: "no certificate found"},
			},
		},
	}
}

func TestCaseExplainer_FallsBackWhenNoGeneratorConfigured(t *testing.T) {
	a, err := New(sampleStore(), nil)
	require.NoError(t, err)

	exp, err := a.CaseExplainer(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, GeneratedByFallback, exp.GeneratedBy)
	require.Equal(t, RecommendReject, exp.RecommendedAction)
	require.Equal(t, "Residency Duration", exp.MissingEvidence[0])
}

func TestCaseExplainer_UsesExternalGeneratorWhenSchemaValid(t *testing.T) {
	payload, _ := json.Marshal(Explanation{
		Summary:           "Looks fine",
		RecommendedAction: "approve",
		KeyRisks:          []string{},
		MissingEvidence:   []string{},
		NextSteps:         []string{},
	})
	gen := &stubGenerator{explainJSON: payload}

	a, err := New(sampleStore(), gen)
	require.NoError(t, err)

	exp, err := a.CaseExplainer(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, GeneratedByExternal, exp.GeneratedBy)
	require.Equal(t, "Looks fine", exp.Summary)
}

func TestCaseExplainer_FallsBackAndAuditsOnSchemaViolation(t *testing.T) {
	gen := &stubGenerator{explainJSON: []byte(`{"summary":"missing required fields"}`)}
	s := sampleStore()

	a, err := New(s, gen)
	require.NoError(t, err)

	exp, err := a.CaseExplainer(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, GeneratedByFallback, exp.GeneratedBy)
	require.Contains(t, s.fallbackHits, domain.ActionAdvisoryFallback)
}

func TestCaseExplainer_FallsBackAndAuditsOnGeneratorError(t *testing.T) {
	gen := &stubGenerator{explainErr: errors.New("upstream timeout")}
	s := sampleStore()

	a, err := New(s, gen)
	require.NoError(t, err)

	exp, err := a.CaseExplainer(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, GeneratedByFallback, exp.GeneratedBy)
	require.Contains(t, s.fallbackHits, domain.ActionAdvisoryFallback)
}

func TestEvidenceRecommendations_FallbackListsFailedRulesByWeight(t *testing.T) {
	a, err := New(sampleStore(), nil)
	require.NoError(t, err)

	rec, err := a.EvidenceRecommendations(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, GeneratedByFallback, rec.GeneratedBy)
	require.Equal(t, []string{"residency_duration", "language_proficiency"}, rec.RecommendedDocumentTypes)
	require.Equal(t, "no residency proof found", rec.RationaleByDocumentType["residency_duration"])
}

func TestEvidenceRecommendations_UsesExternalGeneratorWhenSchemaValid(t *testing.T) {
	payload, _ := json.Marshal(EvidenceRecommendation{
		RecommendedDocumentTypes: []string{"residence_permit"},
		RationaleByDocumentType:  map[string]string{"residence_permit": "strengthens residency claim"},
		RecommendedNextActions:   []string{"Request residence permit copy"},
	})
	gen := &stubGenerator{recommendJSON: payload}

	a, err := New(sampleStore(), gen)
	require.NoError(t, err)

	rec, err := a.EvidenceRecommendations(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, GeneratedByExternal, rec.GeneratedBy)
	require.Equal(t, []string{"residence_permit"}, rec.RecommendedDocumentTypes)
}
