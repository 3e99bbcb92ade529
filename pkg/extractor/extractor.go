// Package extractor implements the Evidence Extractor: it turns a Document's
// raw bytes into extracted text plus a structured, language-agnostic field
// bag. OCR and NLP are abstract providers (pkg/extractor.OCRProvider,
// pkg/extractor.NLPProvider); this package depends only on their contracts.
// OCR unavailability alone never fails a Document: it degrades to a valid,
// empty-but-marked record. Extract returns an error only when every
// available extraction path has failed.
package extractor

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/nordicgov/citizenship-review/pkg/apperr"
	"github.com/nordicgov/citizenship-review/pkg/dictionaries"
	"github.com/nordicgov/citizenship-review/pkg/domain"
)

// Extraction methods recorded on a Result.
const (
	MethodDigitalText = "digital_text"
	MethodImageOCR    = "image_ocr"
	MethodNone        = "none"
)

// Warning codes.
const (
	WarnOCRUnavailable = "ocr_unavailable"
	WarnEmptyText      = "empty_text"
)

// OCRProvider abstracts an external optical-character-recognition backend.
// A nil OCRProvider (or one that returns ErrUnavailable) means OCR is not
// configured; the extractor degrades gracefully rather than failing.
type OCRProvider interface {
	Extract(ctx context.Context, data []byte) (text string, confidence float64, pageCount int, err error)
}

// NLPProvider abstracts an external named-entity/signal extraction backend.
// A nil NLPProvider falls back to the extractor's built-in heuristics.
type NLPProvider interface {
	Analyze(ctx context.Context, text string) (persons []string, locations []string, err error)
}

// DigitalTextReader reads the embedded text layer of a document (e.g. a
// non-scanned PDF) without OCR. A nil reader means every Document is treated
// as needing OCR.
type DigitalTextReader interface {
	ReadText(data []byte) (text string, pageCount int, err error)
}

// ErrUnavailable is returned by a provider that is configured but currently
// cannot serve requests (e.g. OCR disabled via configuration).
var ErrUnavailable = apperr.Extraction(nil, "provider unavailable")

// Result is the per-document evidence record (spec.md §4.1).
type Result struct {
	Method          string
	ExtractedText   string
	OCRConfidence   float64
	PageCount       int
	Warnings        []string
	ExtractedFields domain.FieldBag
}

// Extractor converts Document bytes into a Result.
type Extractor struct {
	ocr     OCRProvider
	nlp     NLPProvider
	digital DigitalTextReader
	dict    *dictionaries.Dictionaries
	timeout time.Duration
}

// Option configures an Extractor.
type Option func(*Extractor)

func WithOCRProvider(p OCRProvider) Option      { return func(e *Extractor) { e.ocr = p } }
func WithNLPProvider(p NLPProvider) Option      { return func(e *Extractor) { e.nlp = p } }
func WithDigitalTextReader(r DigitalTextReader) Option {
	return func(e *Extractor) { e.digital = r }
}
func WithTimeout(d time.Duration) Option { return func(e *Extractor) { e.timeout = d } }

// New creates an Extractor. dict must not be nil.
func New(dict *dictionaries.Dictionaries, opts ...Option) *Extractor {
	e := &Extractor{
		dict:    dict,
		digital: HeuristicDigitalTextReader{},
		timeout: 60 * time.Second,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract converts a document's bytes into a Result. It returns a
// non-nil error only when extraction has genuinely failed on every
// available path (both digital-text and OCR paths errored); OCR
// unavailability alone is reported as a warning, not an error.
func (e *Extractor) Extract(ctx context.Context, contentType domain.ContentType, data []byte, documentType string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var (
		text       string
		pageCount  int
		confidence float64
		method     = MethodNone
		warnings   []string
		digitalErr error
		ocrErr     error
	)

	if contentType == domain.ContentTypePDF && e.digital != nil {
		var t string
		t, pageCount, digitalErr = e.digital.ReadText(data)
		if digitalErr == nil && strings.TrimSpace(t) != "" {
			text = t
			method = MethodDigitalText
		}
	}

	if method == MethodNone {
		if e.ocr == nil {
			warnings = append(warnings, WarnOCRUnavailable)
		} else {
			var t string
			t, confidence, pageCount, ocrErr = e.ocr.Extract(ctx, data)
			if ocrErr != nil {
				warnings = append(warnings, WarnOCRUnavailable)
			} else {
				text = t
				method = MethodImageOCR
			}
		}
	}

	if contentType == domain.ContentTypePDF && method == MethodNone && digitalErr != nil && ocrErr != nil {
		return nil, apperr.Extraction(digitalErr, "both digital-text and OCR extraction failed")
	}

	if strings.TrimSpace(text) == "" {
		warnings = append(warnings, WarnEmptyText)
	}

	fields := e.buildFields(ctx, text)

	return &Result{
		Method:          method,
		ExtractedText:   text,
		OCRConfidence:   confidence,
		PageCount:       pageCount,
		Warnings:        dedupe(warnings),
		ExtractedFields: fields,
	}, nil
}

func (e *Extractor) buildFields(ctx context.Context, text string) domain.FieldBag {
	fb := domain.FieldBag{
		Dates:               dedupe(dateRe.FindAllString(text, -1)),
		IdentifiersPassport: extractIdentifiers(text),
		Nationalities:       e.dict.FindNationalities(text),
		KeywordsCitizenship: e.dict.FindCitizenshipKeywords(text),
		SignalsLanguage:     e.dict.FindLanguageSignals(text),
		SignalsResidency:    e.dict.FindResidencySignals(text),
	}

	if e.nlp != nil {
		if persons, locations, err := e.nlp.Analyze(ctx, text); err == nil {
			fb.Persons = dedupe(persons)
			fb.Locations = dedupe(locations)
		}
	}
	if len(fb.Persons) == 0 {
		fb.Persons = dedupe(personHeuristicRe.FindAllString(text, -1))
	}
	if len(fb.Locations) == 0 {
		fb.Locations = dedupe(postalCodeRe.FindAllString(text, -1))
	}

	n := fb.TotalDistinctEntities()
	richness := float64(n) / 20.0
	if richness > 1 {
		richness = 1
	}
	fb.EntityRichness = richness
	return fb
}

var (
	dateRe            = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{2}\.\d{2}\.\d{4})\b`)
	passportRe        = regexp.MustCompile(`(?i)\b[A-Z]{0,2}\d{6,9}\b`)
	nationalIDRe      = regexp.MustCompile(`\b\d{11}\b`)
	personHeuristicRe = regexp.MustCompile(`\b[A-ZÆØÅ][a-zæøå]+\s[A-ZÆØÅ][a-zæøå]+\b`)
	postalCodeRe      = regexp.MustCompile(`\b\d{4}\s+[A-ZÆØÅ][a-zæøåA-ZÆØÅ\-]+\b`)
)

func extractIdentifiers(text string) []string {
	out := append([]string{}, passportRe.FindAllString(text, -1)...)
	out = append(out, nationalIDRe.FindAllString(text, -1)...)
	return dedupe(out)
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToUpper(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// HeuristicDigitalTextReader extracts printable-text runs from a byte
// stream. It is a best-effort stand-in for a real PDF text-layer reader —
// the actual PDF/OCR engine is an external collaborator (spec.md §1 scope).
type HeuristicDigitalTextReader struct{}

func (HeuristicDigitalTextReader) ReadText(data []byte) (string, int, error) {
	var b strings.Builder
	run := 0
	for _, c := range data {
		if c >= 0x20 && c < 0x7f {
			b.WriteByte(c)
			run++
		} else {
			if run > 0 {
				b.WriteByte(' ')
			}
			run = 0
		}
	}
	text := strings.Join(strings.Fields(b.String()), " ")
	if len(text) < 8 {
		return "", 0, apperr.Extraction(nil, "no digital text layer detected")
	}
	return text, 1, nil
}
