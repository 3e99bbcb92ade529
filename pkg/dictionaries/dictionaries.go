// Package dictionaries loads the curated, versioned vocabularies the
// Evidence Extractor and Rule Engine match against: nationality adjective
// forms and citizenship/language/residency keyword lists. Loading from YAML
// fixtures (rather than hardcoding) keeps the vocabularies independently
// versioned and testable against fixture samples, per spec.md §9's open
// question on dictionary provenance.
package dictionaries

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// NationalityEntry is one canonical nationality adjective plus its aliases.
type NationalityEntry struct {
	Canonical string   `yaml:"canonical"`
	Aliases   []string `yaml:"aliases"`
}

type nationalitiesFile struct {
	Version int                `yaml:"version"`
	Entries []NationalityEntry `yaml:"entries"`
}

type keywordsFile struct {
	Version          int      `yaml:"version"`
	Citizenship      []string `yaml:"citizenship"`
	Language         []string `yaml:"language"`
	Residency        []string `yaml:"residency"`
	DurationPhrases  []string `yaml:"duration_phrases"`
}

// Dictionaries is the loaded, query-ready vocabulary set.
type Dictionaries struct {
	// nationalityByToken maps any lowercased alias (English or Norwegian) to
	// its canonical adjective form.
	nationalityByToken map[string]string
	citizenshipKeywords []string
	languageSignals     []string
	residencySignals    []string
	durationPhrases     []string
}

// Load reads nationalities.yaml and keywords.yaml from dir.
func Load(dir string) (*Dictionaries, error) {
	natsPath := filepath.Join(dir, "nationalities.yaml")
	natsData, err := os.ReadFile(natsPath)
	if err != nil {
		return nil, fmt.Errorf("dictionaries: read %s: %w", natsPath, err)
	}
	var nats nationalitiesFile
	if err := yaml.Unmarshal(natsData, &nats); err != nil {
		return nil, fmt.Errorf("dictionaries: parse %s: %w", natsPath, err)
	}
	if len(nats.Entries) < 50 {
		return nil, fmt.Errorf("dictionaries: nationalities.yaml has %d entries, need >= 50", len(nats.Entries))
	}

	kwPath := filepath.Join(dir, "keywords.yaml")
	kwData, err := os.ReadFile(kwPath)
	if err != nil {
		return nil, fmt.Errorf("dictionaries: read %s: %w", kwPath, err)
	}
	var kw keywordsFile
	if err := yaml.Unmarshal(kwData, &kw); err != nil {
		return nil, fmt.Errorf("dictionaries: parse %s: %w", kwPath, err)
	}

	byToken := make(map[string]string)
	for _, e := range nats.Entries {
		byToken[strings.ToLower(e.Canonical)] = e.Canonical
		byToken[strings.ToLower(strings.ReplaceAll(e.Canonical, "_", " "))] = e.Canonical
		for _, a := range e.Aliases {
			byToken[strings.ToLower(a)] = e.Canonical
		}
	}

	return &Dictionaries{
		nationalityByToken:  byToken,
		citizenshipKeywords: kw.Citizenship,
		languageSignals:     kw.Language,
		residencySignals:    kw.Residency,
		durationPhrases:     kw.DurationPhrases,
	}, nil
}

// CanonicalNationality returns the canonical adjective form for a free-text
// token, and whether it matched the dictionary.
func (d *Dictionaries) CanonicalNationality(token string) (string, bool) {
	canonical, ok := d.nationalityByToken[strings.ToLower(strings.TrimSpace(token))]
	return canonical, ok
}

// FindNationalities scans free text for any dictionary nationality token and
// returns the distinct set of canonical forms found.
func (d *Dictionaries) FindNationalities(text string) []string {
	lower := strings.ToLower(text)
	seen := map[string]struct{}{}
	for token, canonical := range d.nationalityByToken {
		if strings.Contains(lower, token) {
			seen[canonical] = struct{}{}
		}
	}
	return setToSlice(seen)
}

// FindCitizenshipKeywords returns distinct citizenship keywords present in text.
func (d *Dictionaries) FindCitizenshipKeywords(text string) []string {
	return findAny(text, d.citizenshipKeywords)
}

// FindLanguageSignals returns distinct language-proficiency signal tokens present in text.
func (d *Dictionaries) FindLanguageSignals(text string) []string {
	return findAny(text, d.languageSignals)
}

// FindResidencySignals returns distinct residency-history signal tokens present in text.
func (d *Dictionaries) FindResidencySignals(text string) []string {
	return findAny(text, d.residencySignals)
}

// HasDurationPhrase reports whether text contains a curated residency-duration phrase.
func (d *Dictionaries) HasDurationPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range d.durationPhrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func findAny(text string, tokens []string) []string {
	lower := strings.ToLower(text)
	seen := map[string]struct{}{}
	for _, t := range tokens {
		if strings.Contains(lower, strings.ToLower(t)) {
			seen[t] = struct{}{}
		}
	}
	return setToSlice(seen)
}

func setToSlice(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}
