package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys for the review domain.
var (
	AttrCaseID       = attribute.Key("review.case.id")
	AttrApplicantID  = attribute.Key("review.applicant.id")
	AttrCaseStatus   = attribute.Key("review.case.status")
	AttrRiskLevel    = attribute.Key("review.case.risk_level")
	AttrDocumentID   = attribute.Key("review.document.id")
	AttrDocumentType = attribute.Key("review.document.content_type")
	AttrRuleCode     = attribute.Key("review.rule.code")
	AttrRulePassed   = attribute.Key("review.rule.passed")
	AttrQueuePrio    = attribute.Key("review.queue.priority")
	AttrDecision     = attribute.Key("review.decision.action")
	AttrReviewerID   = attribute.Key("review.reviewer.id")
	AttrAuditAction  = attribute.Key("review.audit.action")
)

// CaseOperation builds attributes for an operation scoped to a single case.
func CaseOperation(caseID, applicantID, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrCaseID.String(caseID),
		AttrApplicantID.String(applicantID),
		AttrCaseStatus.String(status),
	}
}

// DocumentOperation builds attributes for a document extraction operation.
func DocumentOperation(caseID, documentID, contentType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrCaseID.String(caseID),
		AttrDocumentID.String(documentID),
		AttrDocumentType.String(contentType),
	}
}

// RuleEvaluationOperation builds attributes for a single rule evaluation.
func RuleEvaluationOperation(caseID, ruleCode string, passed bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrCaseID.String(caseID),
		AttrRuleCode.String(ruleCode),
		AttrRulePassed.Bool(passed),
	}
}

// QueueOperation builds attributes for a review queue operation.
func QueueOperation(caseID string, priority float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrCaseID.String(caseID),
		AttrQueuePrio.Float64(priority),
	}
}

// DecisionOperation builds attributes for a reviewer decision operation.
func DecisionOperation(caseID, reviewerID, action string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrCaseID.String(caseID),
		AttrReviewerID.String(reviewerID),
		AttrDecision.String(action),
	}
}

// AuditOperation builds attributes for an audit trail append.
func AuditOperation(caseID, action string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrCaseID.String(caseID),
		AttrAuditAction.String(action),
	}
}

// SpanFromContext extracts the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records an error on the current span, if any.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
