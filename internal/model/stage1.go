package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Comparison captures the Stage-1 nuance contrast against a near-synonym.
type Comparison struct {
	Vs     string `json:"vs"`
	Nuance string `json:"nuance"`
}

// Homonym is one entry in a Stage-1 result's homonym list.
type Homonym struct {
	Hanja         string `json:"hanja"`
	Reading       string `json:"reading"`
	Meaning       string `json:"meaning"`
	Differentiator string `json:"differentiator"`
}

// Stage1Result is the structured semantic analysis produced by the first
// model call. Field order matches SPEC_FULL.md §3; CanonicalJSON relies on
// Go's encoding/json sorting map keys (there are none here — all fields are
// named) and struct field order, which is stable across runs.
type Stage1Result struct {
	IPA              string       `json:"ipa"`
	POS              PartOfSpeech `json:"pos"`
	PrimaryMeaning   string       `json:"primary_meaning"`
	OtherMeanings    []string     `json:"other_meanings"`
	Metaphor         string       `json:"metaphor"`          // noun + action
	Anchor           string       `json:"anchor"`            // object + sensory
	SuggestedLocation string      `json:"suggested_location"`
	Explanation      string       `json:"explanation"`
	UsageContext     string       `json:"usage_context"`
	Comparison       Comparison   `json:"comparison"`
	Homonyms         []Homonym    `json:"homonyms"`
	KoreanKeywords   []string     `json:"korean_keywords"`
}

// CanonicalJSON serializes the result deterministically so that identical
// Stage1Result values hash identically for Stage-2 cache keying (§3
// invariant: "serialization is deterministic"). encoding/json already emits
// struct fields in declaration order and has no map fields here to sort, so
// marshaling directly is already canonical; this wrapper exists so callers
// never need to know that and a future map-valued field can't silently break
// determinism unnoticed.
func (s Stage1Result) CanonicalJSON() ([]byte, error) {
	buf, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, buf); err != nil {
		return nil, err
	}
	return compact.Bytes(), nil
}

// Validate checks the presence invariants the output parser enforces before
// accepting a Stage-1 result (§4.5): non-empty keyword list, a comparison
// with both fields, and every homonym carrying a meaning.
func (s Stage1Result) Validate() []string {
	var missing []string
	if len(s.KoreanKeywords) == 0 {
		missing = append(missing, "korean_keywords")
	}
	if s.Comparison.Vs == "" {
		missing = append(missing, "comparison.vs")
	}
	if s.Comparison.Nuance == "" {
		missing = append(missing, "comparison.nuance")
	}
	for i, h := range s.Homonyms {
		if h.Meaning == "" {
			missing = append(missing, "homonyms["+strconv.Itoa(i)+"].meaning")
		}
	}
	return missing
}
