// Package domain defines the core entities of the citizenship-application
// review pipeline: User, Case, Document, RuleResult, and AuditEvent.
package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CaseStatus is the stable set of states a Case may occupy.
type CaseStatus string

const (
	StatusDraft             CaseStatus = "Draft"
	StatusDocumentsUploaded CaseStatus = "DocumentsUploaded"
	StatusQueued            CaseStatus = "Queued"
	StatusProcessing        CaseStatus = "Processing"
	StatusReviewReady       CaseStatus = "ReviewReady"
	StatusApproved          CaseStatus = "Approved"
	StatusRejected          CaseStatus = "Rejected"
	StatusMoreInfoRequired  CaseStatus = "MoreInfoRequired"
)

// transitions is the directed status graph (spec.md §4.4). Keys are the
// "from" status; values are the set of statuses reachable directly from it.
var transitions = map[CaseStatus]map[CaseStatus]struct{}{
	StatusDraft: {
		StatusDocumentsUploaded: {},
	},
	StatusDocumentsUploaded: {
		StatusQueued: {},
	},
	StatusQueued: {
		StatusProcessing: {},
	},
	StatusProcessing: {
		StatusReviewReady:       {},
		StatusDocumentsUploaded: {},
		StatusQueued:            {}, // stale-lock reclamation reopens to Queued
	},
	StatusReviewReady: {
		StatusApproved:         {},
		StatusRejected:         {},
		StatusMoreInfoRequired: {},
		StatusQueued:           {}, // force_reprocess
	},
	StatusMoreInfoRequired: {
		StatusQueued: {},
	},
}

// CanTransition reports whether to is a directly reachable status from from
// per the canonical state machine.
func CanTransition(from, to CaseStatus) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// IsTerminal reports whether status has no outgoing transitions.
func IsTerminal(status CaseStatus) bool {
	return status == StatusApproved || status == StatusRejected
}

// RiskLevel is the deterministic bucketing of a Case's confidence score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// FinalDecision mirrors the terminal outcome a reviewer records.
type FinalDecision string

const (
	DecisionApproved         FinalDecision = "Approved"
	DecisionRejected         FinalDecision = "Rejected"
	DecisionMoreInfoRequired FinalDecision = "MoreInfoRequired"
)

// DocumentStatus tracks a Document through extraction.
type DocumentStatus string

const (
	DocumentUploaded   DocumentStatus = "Uploaded"
	DocumentProcessing DocumentStatus = "Processing"
	DocumentProcessed  DocumentStatus = "Processed"
	DocumentFailed     DocumentStatus = "Failed"
)

// ContentType enumerates the allowed document MIME types.
type ContentType string

const (
	ContentTypePDF  ContentType = "application/pdf"
	ContentTypeJPEG ContentType = "image/jpeg"
	ContentTypePNG  ContentType = "image/png"
	ContentTypeWEBP ContentType = "image/webp"
)

// User is an account in the system; reviewers are a privileged subset.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	IsActive     bool      `json:"is_active"`
	IsReviewer   bool      `json:"is_reviewer"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Case is one applicant's citizenship application under review.
type Case struct {
	ID                     string        `json:"id"`
	OwnerID                string        `json:"owner_id"`
	ApplicantFullName      string        `json:"applicant_full_name"`
	ApplicantNationality   string        `json:"applicant_nationality"`
	Notes                  string        `json:"notes,omitempty"`
	Status                 CaseStatus    `json:"status"`
	ConfidenceScore        float64       `json:"confidence_score"`
	RiskLevel              RiskLevel     `json:"risk_level,omitempty"`
	RecommendationSummary  string        `json:"recommendation_summary,omitempty"`
	PriorityScore          float64       `json:"priority_score"`
	SLADueAt               *time.Time    `json:"sla_due_at,omitempty"`
	QueuedAt               *time.Time    `json:"queued_at,omitempty"`
	FinalDecision          FinalDecision `json:"final_decision,omitempty"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

// Document is one piece of supporting evidence uploaded for a Case.
type Document struct {
	ID              string         `json:"id"`
	CaseID          string         `json:"case_id"`
	DocumentType    string         `json:"document_type"`
	OriginalFname   string         `json:"original_filename"`
	ContentType     ContentType    `json:"content_type"`
	SizeBytes       int64          `json:"size_bytes"`
	StorageHandle   string         `json:"storage_handle"`
	Status          DocumentStatus `json:"status"`
	ExtractedText   string         `json:"extracted_text,omitempty"`
	ExtractedFields FieldBag       `json:"extracted_fields"`
	FailureReason   string         `json:"failure_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// RuleResult is the outcome of one rule evaluated against a Case's evidence.
type RuleResult struct {
	ID          string    `json:"id"`
	CaseID      string    `json:"case_id"`
	RuleCode    string    `json:"rule_code"`
	RuleName    string    `json:"rule_name"`
	Passed      bool      `json:"passed"`
	Score       float64   `json:"score"`
	Weight      float64   `json:"weight"`
	Rationale   string    `json:"rationale"`
	Evidence    Evidence  `json:"evidence"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// AuditEvent is one append-only, immutable record of a human or system action.
type AuditEvent struct {
	ID        string    `json:"id"`
	CaseID    string    `json:"case_id"`
	ActorID   string    `json:"actor_id,omitempty"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Stable audit action codes.
const (
	ActionCaseCreated          = "case_created"
	ActionCaseUpdated          = "case_updated"
	ActionDocumentUploaded     = "document_uploaded"
	ActionProcessingQueued     = "processing_queued"
	ActionProcessingStarted    = "processing_started"
	ActionProcessingCompleted  = "processing_completed"
	ActionProcessingFailed     = "processing_failed"
	ActionProcessingCancelled  = "processing_cancelled"
	ActionProcessingRecovered  = "processing_recovered"
	ActionReviewApproved       = "review_approved"
	ActionReviewRejected       = "review_rejected"
	ActionMoreInfoRequested    = "more_info_requested"
	ActionAdvisoryFallback     = "advisory_fallback_used"
)

// FieldBag is the open, language-agnostic evidence attachment produced by the
// Evidence Extractor. Each known key holds a set of distinct string values;
// Extra carries forward-compatible keys the schema does not yet name.
type FieldBag struct {
	Dates               []string       `json:"dates,omitempty"`
	IdentifiersPassport []string       `json:"identifiers.passport,omitempty"`
	Nationalities       []string       `json:"nationalities,omitempty"`
	Persons             []string       `json:"persons,omitempty"`
	Locations           []string       `json:"locations,omitempty"`
	KeywordsCitizenship []string       `json:"keywords.citizenship,omitempty"`
	SignalsLanguage     []string       `json:"signals.language,omitempty"`
	SignalsResidency    []string       `json:"signals.residency,omitempty"`
	EntityRichness      float64        `json:"entity_richness"`
	Extra               map[string]any `json:"extra,omitempty"`
}

// TotalDistinctEntities counts entities across the named entity-bearing keys,
// used by the rule engine's nlp_entity_richness rule.
func (f FieldBag) TotalDistinctEntities() int {
	seen := map[string]struct{}{}
	add := func(vals []string, prefix string) {
		for _, v := range vals {
			seen[prefix+":"+v] = struct{}{}
		}
	}
	add(f.Dates, "date")
	add(f.IdentifiersPassport, "passport")
	add(f.Nationalities, "nat")
	add(f.Persons, "person")
	add(f.Locations, "loc")
	return len(seen)
}

// Value implements driver.Valuer for jsonb persistence, rejecting a bag
// that doesn't conform to fieldBagSchema before it reaches the database.
func (f FieldBag) Value() (driver.Value, error) {
	return marshalValidated(fieldBagSchema, f)
}

// Scan implements sql.Scanner for jsonb persistence.
func (f *FieldBag) Scan(src any) error {
	return scanJSON(src, f)
}

// Evidence records which documents/entities contributed to a RuleResult.
type Evidence struct {
	DocumentIDs []string       `json:"document_ids,omitempty"`
	Entities    []string       `json:"entities,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

func (e Evidence) Value() (driver.Value, error) { return marshalValidated(evidenceSchema, e) }
func (e *Evidence) Scan(src any) error           { return scanJSON(src, e) }

// Metadata is the open bag attached to AuditEvents. Its only structural
// requirement is being a JSON object, which its Go type already guarantees,
// so it carries no jsonschema.Schema of its own.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) { return json.Marshal(m) }
func (m *Metadata) Scan(src any) error           { return scanJSON(src, m) }

// marshalValidated encodes v and validates the result against schema before
// returning it, so a malformed FieldBag or Evidence never reaches the
// database. A schema violation here means the Evidence Extractor or Rule
// Engine produced a value outside its own contract, not a data-entry error,
// so it is reported as a storage-layer error rather than silently written.
func marshalValidated(schema *jsonschema.Schema, v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return nil, err
	}
	if err := schema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("domain: schema validation failed: %w", err)
	}
	return b, nil
}

var (
	fieldBagSchema = mustCompileSchema("field_bag.schema.json", fieldBagSchemaJSON)
	evidenceSchema = mustCompileSchema("evidence.schema.json", evidenceSchemaJSON)
)

func mustCompileSchema(uri, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := "https://review.nordicgov.example/domain/" + uri
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("domain: invalid embedded schema %s: %v", uri, err))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("domain: failed to compile schema %s: %v", uri, err))
	}
	return compiled
}

const fieldBagSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "dates": {"type": "array", "items": {"type": "string"}},
    "identifiers.passport": {"type": "array", "items": {"type": "string"}},
    "nationalities": {"type": "array", "items": {"type": "string"}},
    "persons": {"type": "array", "items": {"type": "string"}},
    "locations": {"type": "array", "items": {"type": "string"}},
    "keywords.citizenship": {"type": "array", "items": {"type": "string"}},
    "signals.language": {"type": "array", "items": {"type": "string"}},
    "signals.residency": {"type": "array", "items": {"type": "string"}},
    "entity_richness": {"type": "number", "minimum": 0},
    "extra": {"type": "object"}
  }
}`

const evidenceSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "document_ids": {"type": "array", "items": {"type": "string"}},
    "entities": {"type": "array", "items": {"type": "string"}},
    "extra": {"type": "object"}
  }
}`

func scanJSON(src any, dst any) error {
	if src == nil {
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("domain: unsupported scan source type %T", src)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}
