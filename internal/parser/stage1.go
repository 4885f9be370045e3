// Package parser implements the Stage-1 JSON and Stage-2 TSV output parsers
// (§4.5), including the JSON recovery pass, partial-field fallback, and the
// durable output archive.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/errs"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

var fencedJSONObject = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*(\{.*?\})\s*` + "```")

var stage1RequiredFields = []string{
	"term_number", "term", "ipa", "pos", "primary_meaning",
	"metaphor_noun", "metaphor_action", "suggested_location",
	"anchor_object", "anchor_sensory", "explanation", "comparison",
	"korean_keywords",
}

// jsonRecoveryFixes mirrors OutputErrorRecovery.common_fixes: targeted
// regex repairs for the handful of malformations models reliably produce.
var jsonRecoveryFixes = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`,\s*}`), "}"},
	{regexp.MustCompile(`,\s*]`), "]"},
	{regexp.MustCompile(`}\s*{`), "},{"},
	{regexp.MustCompile(`]\s*\[`), "],["},
}

type rawComparison struct {
	Vs     string `json:"vs"`
	Nuance string `json:"nuance"`
}

type rawHomonym struct {
	Hanja          string `json:"hanja"`
	Reading        string `json:"reading"`
	Meaning        string `json:"meaning"`
	Differentiator string `json:"differentiator"`
}

type rawStage1 struct {
	IPA                string        `json:"ipa"`
	POS                string        `json:"pos"`
	PrimaryMeaning     string        `json:"primary_meaning"`
	OtherMeanings      []string      `json:"other_meanings"`
	MetaphorNoun       string        `json:"metaphor_noun"`
	MetaphorAction     string        `json:"metaphor_action"`
	SuggestedLocation  string        `json:"suggested_location"`
	AnchorObject       string        `json:"anchor_object"`
	AnchorSensory      string        `json:"anchor_sensory"`
	Explanation        string        `json:"explanation"`
	UsageContext       string        `json:"usage_context"`
	Comparison         rawComparison `json:"comparison"`
	Homonyms           []rawHomonym  `json:"homonyms"`
	KoreanKeywords     []string      `json:"korean_keywords"`
}

func (r rawStage1) toResult() model.Stage1Result {
	homonyms := make([]model.Homonym, len(r.Homonyms))
	for i, h := range r.Homonyms {
		homonyms[i] = model.Homonym{
			Hanja:          h.Hanja,
			Reading:        h.Reading,
			Meaning:        h.Meaning,
			Differentiator: h.Differentiator,
		}
	}
	return model.Stage1Result{
		IPA:               r.IPA,
		POS:               model.ParsePartOfSpeech(r.POS),
		PrimaryMeaning:    r.PrimaryMeaning,
		OtherMeanings:     r.OtherMeanings,
		Metaphor:          strings.TrimSpace(r.MetaphorNoun + ": " + r.MetaphorAction),
		Anchor:            strings.TrimSpace(r.AnchorObject + ": " + r.AnchorSensory),
		SuggestedLocation: r.SuggestedLocation,
		Explanation:       r.Explanation,
		UsageContext:      r.UsageContext,
		Comparison:        model.Comparison{Vs: r.Comparison.Vs, Nuance: r.Comparison.Nuance},
		Homonyms:          homonyms,
		KoreanKeywords:    r.KoreanKeywords,
	}
}

// extractJSONObject pulls a JSON object out of a fenced ```json code block if
// present, otherwise treats the trimmed raw text as the object itself.
func extractJSONObject(raw string) string {
	if m := fencedJSONObject.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return strings.TrimSpace(raw)
}

// missingFields reports which of stage1RequiredFields are absent from the
// decoded top-level object.
func missingFields(obj map[string]any) []string {
	var missing []string
	for _, f := range stage1RequiredFields {
		if _, ok := obj[f]; !ok {
			missing = append(missing, f)
		}
	}
	if kws, ok := obj["korean_keywords"].([]any); ok && len(kws) == 0 {
		missing = append(missing, "korean_keywords (empty)")
	}
	if cmp, ok := obj["comparison"].(map[string]any); ok {
		if _, ok := cmp["vs"]; !ok {
			missing = append(missing, "comparison.vs")
		}
		if _, ok := cmp["nuance"]; !ok {
			missing = append(missing, "comparison.nuance")
		}
	}
	return missing
}

// recoverJSON applies jsonRecoveryFixes and re-extracts any fenced block,
// returning the repaired text only if it is now valid JSON (§4.5 "recovery
// pass").
func recoverJSON(candidate string) (string, bool) {
	fixed := candidate
	for _, fix := range jsonRecoveryFixes {
		fixed = fix.pattern.ReplaceAllString(fixed, fix.replacement)
	}
	if m := fencedJSONObject.FindStringSubmatch(fixed); m != nil {
		fixed = m[1]
	}
	var probe map[string]any
	if json.Unmarshal([]byte(fixed), &probe) != nil {
		return "", false
	}
	return fixed, true
}

var partialFieldPatterns = map[string]*regexp.Regexp{
	"term":            regexp.MustCompile(`"term"\s*:\s*"([^"]+)"`),
	"ipa":             regexp.MustCompile(`"ipa"\s*:\s*"([^"]+)"`),
	"pos":             regexp.MustCompile(`"pos"\s*:\s*"([^"]+)"`),
	"primary_meaning": regexp.MustCompile(`"primary_meaning"\s*:\s*"([^"]+)"`),
	"metaphor_noun":   regexp.MustCompile(`"metaphor_noun"\s*:\s*"([^"]+)"`),
	"metaphor_action": regexp.MustCompile(`"metaphor_action"\s*:\s*"([^"]+)"`),
	"explanation":     regexp.MustCompile(`"explanation"\s*:\s*"([^"]+)"`),
}

// extractPartial recovers a best-effort, flagged-partial Stage1Result by
// per-field regex when the output is wholly unrecoverable as JSON (§4.5).
func extractPartial(raw string) (model.Stage1Result, bool) {
	fields := map[string]string{}
	for name, pattern := range partialFieldPatterns {
		if m := pattern.FindStringSubmatch(raw); m != nil {
			fields[name] = m[1]
		}
	}
	if len(fields) == 0 {
		return model.Stage1Result{}, false
	}
	return model.Stage1Result{
		IPA:            fields["ipa"],
		POS:            model.ParsePartOfSpeech(fields["pos"]),
		PrimaryMeaning: fields["primary_meaning"],
		Metaphor:       strings.TrimSpace(fields["metaphor_noun"] + ": " + fields["metaphor_action"]),
		Explanation:    fields["explanation"],
	}, true
}

// ParseStage1 implements the full §4.5 Stage-1 pipeline: direct/fenced JSON
// extraction, validation, one recovery pass, and partial-field fallback.
// A partial result is returned alongside a non-nil error so callers can
// distinguish "usable but incomplete" from "nothing recovered".
func ParseStage1(raw string) (model.Stage1Result, error) {
	candidate := extractJSONObject(raw)

	result, err := tryParseStage1(candidate)
	if err == nil {
		return result, nil
	}

	if fixed, ok := recoverJSON(candidate); ok {
		if result, err2 := tryParseStage1(fixed); err2 == nil {
			return result, nil
		}
	}

	if partial, ok := extractPartial(raw); ok {
		return partial, errs.New(errs.Parsing, "stage1 output recovered only partially").
			WithFields([]string{"partial"})
	}

	return model.Stage1Result{}, errs.Wrap(errs.Parsing, err, "stage1 output unparseable")
}

func tryParseStage1(candidate string) (model.Stage1Result, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return model.Stage1Result{}, errs.Wrap(errs.Parsing, err, "invalid stage1 json")
	}

	if missing := missingFields(obj); len(missing) > 0 {
		return model.Stage1Result{}, errs.New(errs.Parsing, "missing required stage1 fields").
			WithFields(missing)
	}

	var raw rawStage1
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return model.Stage1Result{}, errs.Wrap(errs.Parsing, err, "stage1 field decode")
	}

	result := raw.toResult()
	if missing := result.Validate(); len(missing) > 0 {
		return model.Stage1Result{}, errs.New(errs.Parsing, "stage1 result failed validation").
			WithFields(missing)
	}
	return result, nil
}
