// Package model contains the domain types shared by every pipeline
// component: vocabulary input, the two model-call results, cache entries,
// rate-limit reservations, batches, checkpoints, and processing results.
package model

import (
	"strings"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/errs"
)

// PartOfSpeech is the canonical tag set a VocabularyItem's Type and a
// Stage1Result's normalized POS are drawn from. Abbreviations normalize to
// the long form; anything unrecognized normalizes to Unknown.
type PartOfSpeech string

const (
	POSNoun         PartOfSpeech = "noun"
	POSPronoun      PartOfSpeech = "pronoun"
	POSVerb         PartOfSpeech = "verb"
	POSAdjective    PartOfSpeech = "adjective"
	POSAdverb       PartOfSpeech = "adverb"
	POSDeterminer   PartOfSpeech = "determiner"
	POSExclamation  PartOfSpeech = "exclamation"
	POSParticle     PartOfSpeech = "particle"
	POSCounter      PartOfSpeech = "counter"
	POSUnknown      PartOfSpeech = "unknown"
)

var posAbbreviations = map[string]PartOfSpeech{
	"n":    POSNoun,
	"pron": POSPronoun,
	"v":    POSVerb,
	"adj":  POSAdjective,
	"adv":  POSAdverb,
	"det":  POSDeterminer,
	"excl": POSExclamation,
	"part": POSParticle,
	"cnt":  POSCounter,
}

var validPOS = map[PartOfSpeech]bool{
	POSNoun: true, POSPronoun: true, POSVerb: true, POSAdjective: true,
	POSAdverb: true, POSDeterminer: true, POSExclamation: true,
	POSParticle: true, POSCounter: true, POSUnknown: true,
}

// ParsePartOfSpeech normalizes a free-form tag (full name or abbreviation,
// any case) to the canonical set. Unrecognized input normalizes to Unknown
// rather than erroring — POS is advisory metadata, not a validation gate.
func ParsePartOfSpeech(raw string) PartOfSpeech {
	norm := PartOfSpeech(strings.ToLower(strings.TrimSpace(raw)))
	if validPOS[norm] {
		return norm
	}
	if full, ok := posAbbreviations[string(norm)]; ok {
		return full
	}
	return POSUnknown
}

// VocabularyItem is the unit of work ingested by the orchestrator. It is
// immutable once created.
type VocabularyItem struct {
	Position int          `json:"position"`
	Term     string       `json:"term"`
	Type     PartOfSpeech `json:"type"`
}

// Validate checks the invariants a VocabularyItem must satisfy before entering
// the pipeline: a positive position and a non-empty term.
func (v VocabularyItem) Validate() error {
	if v.Position <= 0 {
		return errs.New(errs.Validation, "position must be positive")
	}
	if strings.TrimSpace(v.Term) == "" {
		return errs.New(errs.Validation, "term must not be empty")
	}
	return nil
}
