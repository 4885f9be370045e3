package apiclient

import (
	"fmt"
	"strings"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

const stage1SystemPrompt = "You are a Korean language analyst producing structured nuance data for language learners. Respond with a single JSON object and nothing else."

const stage2SystemPrompt = "You are a Korean flashcard author. Respond with tab-separated rows only: position, term_with_ipa, term_number, tab_name, primer, front, back, tags, honorific_level. No header, no commentary."

// buildStage1Messages builds the Stage-1 nuance-analysis prompt for item.
func buildStage1Messages(item model.VocabularyItem) []chatMessage {
	user := fmt.Sprintf(`Create a comprehensive nuance analysis for the Korean term: %s
Part of speech: %s

Provide:
- ipa: IPA transcription
- pos: normalized part of speech
- primary_meaning and other_meanings
- metaphor_noun and metaphor_action: a memorable image pairing
- anchor_object and anchor_sensory: a concrete sensory anchor
- suggested_location: where this term fits in a study plan
- explanation: etymology and usage notes
- usage_context: when a speaker would reach for this term
- comparison: {vs, nuance} against the closest near-synonym
- homonyms: any same-sound terms, each with hanja/reading/meaning/differentiator
- korean_keywords: key Korean words tied to this term

Return a single JSON object with exactly these fields.`, item.Term, item.Type)

	return []chatMessage{
		{Role: "system", Content: stage1SystemPrompt},
		{Role: "user", Content: user},
	}
}

// buildStage2Messages builds the Stage-2 flashcard-generation prompt from
// the Stage-1 result produced for the same item.
func buildStage2Messages(item model.VocabularyItem, stage1 model.Stage1Result) []chatMessage {
	canon, err := stage1.CanonicalJSON()
	var nuance string
	if err != nil {
		nuance = stage1.PrimaryMeaning
	} else {
		nuance = string(canon)
	}

	orderedTabs := []model.TabName{
		model.TabScene, model.TabUsageComparison, model.TabHanja,
		model.TabGrammar, model.TabFormalCasual, model.TabExample,
		model.TabCultural,
	}
	tabs := make([]string, len(orderedTabs))
	for i, name := range orderedTabs {
		tabs[i] = string(name)
	}

	user := fmt.Sprintf(`Generate a set of flashcards for the Korean term: %s

Nuance analysis from the prior stage:
%s

For each flashcard tab that applies (%s), emit one tab-separated row with
columns: position, term_with_ipa, term_number, tab_name, primer, front,
back, tags, honorific_level. term_number restarts at 1 for this item and
increments per row. Do not include a header row.`, item.Term, nuance, strings.Join(tabs, ", "))

	return []chatMessage{
		{Role: "system", Content: stage2SystemPrompt},
		{Role: "user", Content: user},
	}
}
