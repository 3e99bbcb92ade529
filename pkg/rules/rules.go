// Package rules implements the deterministic weighted Rule Engine: a fixed
// set of pure functions evaluated over a Case's aggregated evidence,
// producing an ordered DecisionBreakdown (RuleResults plus confidence_score,
// risk_level, and recommendation_summary).
package rules

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/nordicgov/citizenship-review/pkg/domain"
)

// Canonical rule codes, stable across releases.
const (
	CodeIdentityDocumentPresent    = "identity_document_present"
	CodeResidencyEvidencePresent   = "residency_evidence_present"
	CodeDocumentQuality            = "document_quality"
	CodeLanguageIntegrationEvidence = "language_integration_evidence"
	CodeSecurityScreeningEvidence  = "security_screening_evidence"
	CodeNLPEntityRichness          = "nlp_entity_richness"
	CodeResidencyDurationSignal    = "residency_duration_signal"
)

var durationKeywords = []string{"long-term", "years", "permanent"}

// rule is one canonical, weighted evaluator. Order is significant: it is the
// tie-break order used when ranking failed rules for recommendation_summary.
type rule struct {
	code   string
	name   string
	weight float64
	eval   func(c domain.Case, docs []domain.Document) (score float64, passed bool, rationale string, evidence domain.Evidence)
}

// Weight returns the rule's fixed weight in the aggregation.
func (r rule) Weight() float64 { return r.weight }

// Code returns the rule's stable rule_code.
func (r rule) Code() string { return r.code }

// Registry is the canonical, ordered rule set. Weights sum to exactly 1.0.
var Registry = []rule{
	{CodeIdentityDocumentPresent, "Identity document present", 0.20, evalIdentityDocumentPresent},
	{CodeResidencyEvidencePresent, "Residency evidence present", 0.18, evalResidencyEvidencePresent},
	{CodeDocumentQuality, "Document OCR/NLP quality", 0.17, evalDocumentQuality},
	{CodeLanguageIntegrationEvidence, "Language/integration evidence", 0.15, evalLanguageIntegrationEvidence},
	{CodeSecurityScreeningEvidence, "Security screening evidence", 0.15, evalSecurityScreeningEvidence},
	{CodeNLPEntityRichness, "NLP entity richness", 0.10, evalNLPEntityRichness},
	{CodeResidencyDurationSignal, "Residency duration signal", 0.05, evalResidencyDurationSignal},
}

// Breakdown is the Rule Engine's output for one Case.
type Breakdown struct {
	Results               []domain.RuleResult
	ConfidenceScore       float64
	RiskLevel             domain.RiskLevel
	RecommendationSummary string
}

// Evaluate runs every rule in Registry against c and its Documents, in
// registry order, and aggregates the result. Given identical inputs it
// produces byte-identical output: no wall-clock reads, no randomness, no
// map-iteration-order dependence in the scoring path.
func Evaluate(c domain.Case, docs []domain.Document, now time.Time) Breakdown {
	results := make([]domain.RuleResult, 0, len(Registry))
	var weighted float64

	for _, r := range Registry {
		score, passed, rationale, evidence := r.eval(c, docs)
		score = clamp01(score)
		results = append(results, domain.RuleResult{
			CaseID:      c.ID,
			RuleCode:    r.code,
			RuleName:    r.name,
			Passed:      passed,
			Score:       score,
			Weight:      r.weight,
			Rationale:   rationale,
			Evidence:    evidence,
			EvaluatedAt: now,
		})
		weighted += score * r.weight
	}

	confidence := roundTo(weighted, 4)
	risk := bucketRisk(confidence)
	summary := recommendationSummary(risk, results)

	return Breakdown{
		Results:               results,
		ConfidenceScore:       confidence,
		RiskLevel:             risk,
		RecommendationSummary: summary,
	}
}

func bucketRisk(confidence float64) domain.RiskLevel {
	switch {
	case confidence >= 0.75:
		return domain.RiskLow
	case confidence >= 0.50:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

// recommendationSummary names the risk level plus the top two failed rules
// by weight, ties broken by Registry order.
func recommendationSummary(risk domain.RiskLevel, results []domain.RuleResult) string {
	type failed struct {
		name   string
		weight float64
		order  int
	}
	var fails []failed
	for i, r := range results {
		if !r.Passed {
			fails = append(fails, failed{r.RuleName, r.Weight, i})
		}
	}
	if len(fails) == 0 {
		return fmt.Sprintf("%s risk; all rule checks passed.", risk)
	}
	sort.SliceStable(fails, func(i, j int) bool {
		if fails[i].weight != fails[j].weight {
			return fails[i].weight > fails[j].weight
		}
		return fails[i].order < fails[j].order
	})
	n := len(fails)
	if n > 2 {
		n = 2
	}
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = fails[i].name
	}
	return fmt.Sprintf("%s risk; weakest signals: %s.", risk, strings.Join(names, ", "))
}

func evalIdentityDocumentPresent(_ domain.Case, docs []domain.Document) (float64, bool, string, domain.Evidence) {
	if d, ok := firstByType(docs, "passport", "id_card"); ok {
		return 1.0, true, "identity document of type " + d.DocumentType + " present", evidenceOf(d.ID)
	}
	if d, ok := firstWithPassportIdentifier(docs); ok {
		return 0.6, true, "passport identifier extracted without a classified identity document", evidenceOf(d.ID)
	}
	return 0.0, false, "no identity document or passport identifier found", domain.Evidence{}
}

func evalResidencyEvidencePresent(_ domain.Case, docs []domain.Document) (float64, bool, string, domain.Evidence) {
	if d, ok := firstByType(docs, "residence_permit", "residence_proof", "tax_statement"); ok {
		return 1.0, true, "residency document of type " + d.DocumentType + " present", evidenceOf(d.ID)
	}
	ids, tokens := residencySignalIDs(docs)
	if len(tokens) > 0 {
		return 0.5, true, "residency signals present without a classified residency document", domain.Evidence{DocumentIDs: ids, Entities: tokens}
	}
	return 0.0, false, "no residency document or residency signals found", domain.Evidence{}
}

func evalDocumentQuality(_ domain.Case, docs []domain.Document) (float64, bool, string, domain.Evidence) {
	var sum float64
	var n int
	var ids []string
	for _, d := range docs {
		if d.Status != domain.DocumentProcessed {
			continue
		}
		sum += d.ExtractedFields.EntityRichness
		n++
		ids = append(ids, d.ID)
	}
	if n == 0 {
		return 0.0, false, "no processed documents to assess", domain.Evidence{}
	}
	q := sum / float64(n)
	return q, q >= 0.4, fmt.Sprintf("mean entity richness %.2f across %d processed documents", q, n), domain.Evidence{DocumentIDs: ids}
}

func evalLanguageIntegrationEvidence(_ domain.Case, docs []domain.Document) (float64, bool, string, domain.Evidence) {
	if d, ok := firstByType(docs, "language_certificate", "norwegian_test", "education_certificate"); ok {
		return 1.0, true, "language/integration document of type " + d.DocumentType + " present", evidenceOf(d.ID)
	}
	ids, tokens := languageSignalIDs(docs)
	if len(tokens) > 0 {
		return 0.6, true, "language proficiency signals present without a classified document", domain.Evidence{DocumentIDs: ids, Entities: tokens}
	}
	return 0.0, false, "no language/integration evidence found", domain.Evidence{}
}

func evalSecurityScreeningEvidence(_ domain.Case, docs []domain.Document) (float64, bool, string, domain.Evidence) {
	if d, ok := firstByType(docs, "police_clearance"); ok {
		return 1.0, true, "police clearance document present", evidenceOf(d.ID)
	}
	return 0.0, false, "no police clearance document found", domain.Evidence{}
}

func evalNLPEntityRichness(_ domain.Case, docs []domain.Document) (float64, bool, string, domain.Evidence) {
	n := totalDistinctEntities(docs)
	score := math.Min(1, float64(n)/40.0)
	return score, n >= 10, fmt.Sprintf("%d distinct entities extracted across all documents", n), domain.Evidence{}
}

func evalResidencyDurationSignal(c domain.Case, docs []domain.Document) (float64, bool, string, domain.Evidence) {
	lowerNotes := strings.ToLower(c.Notes)
	for _, kw := range durationKeywords {
		if strings.Contains(lowerNotes, kw) {
			return 1.0, true, "case notes mention a residency-duration keyword", domain.Evidence{}
		}
	}
	for _, d := range docs {
		if len(d.ExtractedFields.SignalsResidency) > 0 && hasDurationPhraseSignal(d) {
			return 1.0, true, "document exhibits a residency-duration phrase", evidenceOf(d.ID)
		}
	}
	ids, tokens := residencySignalIDs(docs)
	if len(tokens) > 0 {
		return 0.5, true, "residency signal present without an explicit duration phrase", domain.Evidence{DocumentIDs: ids, Entities: tokens}
	}
	return 0.0, false, "no residency-duration signal found", domain.Evidence{}
}

// hasDurationPhraseSignal is intentionally conservative: the duration-phrase
// classification happens in the extractor; here we only know the residency
// signal set is non-empty, which the caller treats as a 0.5 fallback when
// this returns false.
func hasDurationPhraseSignal(d domain.Document) bool {
	for _, s := range d.ExtractedFields.SignalsResidency {
		lower := strings.ToLower(s)
		if strings.Contains(lower, "botid") || strings.Contains(lower, "long-term") ||
			strings.Contains(lower, "permanent resident since") || strings.Contains(lower, "lived in") {
			return true
		}
	}
	return false
}

func firstByType(docs []domain.Document, types ...string) (domain.Document, bool) {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	for _, d := range docs {
		if _, ok := set[d.DocumentType]; ok {
			return d, true
		}
	}
	return domain.Document{}, false
}

func firstWithPassportIdentifier(docs []domain.Document) (domain.Document, bool) {
	for _, d := range docs {
		if len(d.ExtractedFields.IdentifiersPassport) > 0 {
			return d, true
		}
	}
	return domain.Document{}, false
}

func residencySignalIDs(docs []domain.Document) ([]string, []string) {
	var ids, tokens []string
	seen := map[string]struct{}{}
	for _, d := range docs {
		for _, t := range d.ExtractedFields.SignalsResidency {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tokens = append(tokens, t)
			ids = append(ids, d.ID)
		}
	}
	return ids, tokens
}

func languageSignalIDs(docs []domain.Document) ([]string, []string) {
	var ids, tokens []string
	seen := map[string]struct{}{}
	for _, d := range docs {
		for _, t := range d.ExtractedFields.SignalsLanguage {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tokens = append(tokens, t)
			ids = append(ids, d.ID)
		}
	}
	return ids, tokens
}

func totalDistinctEntities(docs []domain.Document) int {
	seen := map[string]struct{}{}
	add := func(vals []string, prefix string) {
		for _, v := range vals {
			seen[prefix+":"+v] = struct{}{}
		}
	}
	for _, d := range docs {
		fb := d.ExtractedFields
		add(fb.Dates, "date")
		add(fb.IdentifiersPassport, "passport")
		add(fb.Nationalities, "nat")
		add(fb.Persons, "person")
		add(fb.Locations, "loc")
	}
	return len(seen)
}

func evidenceOf(documentID string) domain.Evidence {
	return domain.Evidence{DocumentIDs: []string{documentID}}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func roundTo(v float64, places int) float64 {
	mult := math.Pow(10, float64(places))
	return math.Round(v*mult) / mult
}
