// Package advisory implements the AI Advisory: two read-only, advisory-only
// operations that explain a Case's rule breakdown in natural language. Both
// degrade to a deterministic, schema-free fallback when no external
// generator is configured or when the generator's output fails schema
// validation. Advisory output never mutates Case state.
package advisory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nordicgov/citizenship-review/pkg/domain"
)

const (
	RecommendApprove        = "approve"
	RecommendReject         = "reject"
	RecommendRequestMoreInfo = "request_more_info"

	GeneratedByFallback = "deterministic_fallback"
	GeneratedByExternal = "external_generator"
)

// Explanation is case_explainer's output (spec.md §4.7).
type Explanation struct {
	Summary           string   `json:"summary"`
	RecommendedAction string   `json:"recommended_action"`
	KeyRisks          []string `json:"key_risks"`
	MissingEvidence   []string `json:"missing_evidence"`
	NextSteps         []string `json:"next_steps"`
	GeneratedBy       string   `json:"generated_by"`
}

// EvidenceRecommendation is evidence_recommendations' output (spec.md §4.7).
type EvidenceRecommendation struct {
	RecommendedDocumentTypes []string          `json:"recommended_document_types"`
	RationaleByDocumentType  map[string]string `json:"rationale_by_document_type"`
	RecommendedNextActions   []string          `json:"recommended_next_actions"`
	GeneratedBy              string            `json:"generated_by"`
}

// Generator abstracts an external advisory backend (e.g. an LLM API). It
// returns raw JSON; the Advisor schema-validates it before trusting it.
type Generator interface {
	Explain(ctx context.Context, c domain.Case, results []domain.RuleResult) (json []byte, err error)
	Recommend(ctx context.Context, c domain.Case, results []domain.RuleResult) (json []byte, err error)
}

// CaseStore is the subset of the Case Store the Advisor reads from.
type CaseStore interface {
	GetCase(ctx context.Context, caseID string) (*domain.Case, error)
	ReadBreakdown(ctx context.Context, caseID string) ([]domain.RuleResult, error)
	AppendAudit(ctx context.Context, caseID, action, actorID, reason string, metadata domain.Metadata) error
}

// Advisor serves case_explainer and evidence_recommendations.
type Advisor struct {
	store           CaseStore
	generator       Generator
	explainSchema   *jsonschema.Schema
	recommendSchema *jsonschema.Schema
}

// New compiles the output schemas once. generator may be nil, in which case
// every call uses the deterministic fallback.
func New(store CaseStore, generator Generator) (*Advisor, error) {
	explainSchema, err := compile("explanation.schema.json", explanationSchemaJSON)
	if err != nil {
		return nil, err
	}
	recommendSchema, err := compile("evidence_recommendation.schema.json", evidenceRecommendationSchemaJSON)
	if err != nil {
		return nil, err
	}
	return &Advisor{store: store, generator: generator, explainSchema: explainSchema, recommendSchema: recommendSchema}, nil
}

// CaseExplainer implements case_explainer.
func (a *Advisor) CaseExplainer(ctx context.Context, caseID string) (*Explanation, error) {
	c, results, err := a.load(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if a.generator != nil {
		if raw, genErr := a.generator.Explain(ctx, *c, results); genErr == nil {
			var candidate Explanation
			if validateAndDecode(a.explainSchema, raw, &candidate) == nil {
				candidate.GeneratedBy = GeneratedByExternal
				return &candidate, nil
			}
			a.auditFallback(ctx, caseID, "case_explainer")
		} else {
			a.auditFallback(ctx, caseID, "case_explainer")
		}
	}

	return fallbackExplanation(*c, results), nil
}

// EvidenceRecommendations implements evidence_recommendations.
func (a *Advisor) EvidenceRecommendations(ctx context.Context, caseID string) (*EvidenceRecommendation, error) {
	c, results, err := a.load(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if a.generator != nil {
		if raw, genErr := a.generator.Recommend(ctx, *c, results); genErr == nil {
			var candidate EvidenceRecommendation
			if validateAndDecode(a.recommendSchema, raw, &candidate) == nil {
				candidate.GeneratedBy = GeneratedByExternal
				return &candidate, nil
			}
			a.auditFallback(ctx, caseID, "evidence_recommendations")
		} else {
			a.auditFallback(ctx, caseID, "evidence_recommendations")
		}
	}

	return fallbackEvidenceRecommendation(results), nil
}

func (a *Advisor) load(ctx context.Context, caseID string) (*domain.Case, []domain.RuleResult, error) {
	c, err := a.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	results, err := a.store.ReadBreakdown(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	return c, results, nil
}

func (a *Advisor) auditFallback(ctx context.Context, caseID, operation string) {
	_ = a.store.AppendAudit(ctx, caseID, domain.ActionAdvisoryFallback, "", "", domain.Metadata{"operation": operation})
}

func recommendedAction(risk domain.RiskLevel) string {
	switch risk {
	case domain.RiskLow:
		return RecommendApprove
	case domain.RiskHigh:
		return RecommendReject
	default:
		return RecommendRequestMoreInfo
	}
}

func failedByWeight(results []domain.RuleResult) []domain.RuleResult {
	failed := make([]domain.RuleResult, 0, len(results))
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	sort.SliceStable(failed, func(i, j int) bool { return failed[i].Weight > failed[j].Weight })
	return failed
}

func fallbackExplanation(c domain.Case, results []domain.RuleResult) *Explanation {
	failed := failedByWeight(results)

	var risks, missing, steps []string
	for _, r := range failed {
		risks = append(risks, r.RuleName+": "+r.Rationale)
		missing = append(missing, r.RuleName)
		steps = append(steps, "Address: "+r.RuleName)
	}

	summary := "Case " + c.ID + " has confidence score " + formatScore(c.ConfidenceScore) +
		" (" + string(c.RiskLevel) + " risk)."
	if len(failed) > 0 {
		summary += " Weakest area: " + failed[0].RuleName + "."
	}

	return &Explanation{
		Summary:           summary,
		RecommendedAction: recommendedAction(c.RiskLevel),
		KeyRisks:          risks,
		MissingEvidence:   missing,
		NextSteps:         steps,
		GeneratedBy:       GeneratedByFallback,
	}
}

func fallbackEvidenceRecommendation(results []domain.RuleResult) *EvidenceRecommendation {
	failed := failedByWeight(results)

	docTypes := make([]string, 0, len(failed))
	rationale := make(map[string]string, len(failed))
	actions := make([]string, 0, len(failed))
	for _, r := range failed {
		docTypes = append(docTypes, r.RuleCode)
		rationale[r.RuleCode] = r.Rationale
		actions = append(actions, "Request additional evidence for "+r.RuleName)
	}

	return &EvidenceRecommendation{
		RecommendedDocumentTypes: docTypes,
		RationaleByDocumentType:  rationale,
		RecommendedNextActions:   actions,
		GeneratedBy:              GeneratedByFallback,
	}
}

func formatScore(v float64) string {
	s := strings.TrimRight(strings.TrimRight(jsonNumber(v), "0"), ".")
	if s == "" {
		s = "0"
	}
	return s
}

func jsonNumber(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func compile(uri, schema string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := "https://review.nordicgov.example/advisory/" + uri
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

func validateAndDecode(schema *jsonschema.Schema, raw []byte, out any) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

const explanationSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["summary", "recommended_action", "key_risks", "missing_evidence", "next_steps"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "recommended_action": {"type": "string", "enum": ["approve", "reject", "request_more_info"]},
    "key_risks": {"type": "array", "items": {"type": "string"}},
    "missing_evidence": {"type": "array", "items": {"type": "string"}},
    "next_steps": {"type": "array", "items": {"type": "string"}}
  }
}`

const evidenceRecommendationSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["recommended_document_types", "rationale_by_document_type", "recommended_next_actions"],
  "properties": {
    "recommended_document_types": {"type": "array", "items": {"type": "string"}},
    "rationale_by_document_type": {"type": "object", "additionalProperties": {"type": "string"}},
    "recommended_next_actions": {"type": "array", "items": {"type": "string"}}
  }
}`
