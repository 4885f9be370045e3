package model

import "time"

// Stage identifies which half of the pipeline (or completion) a batch is in.
type Stage int

const (
	StageOne Stage = iota + 1
	StageTwo
	StageCompleted
)

// ProcessingResult is the output of processing a single vocabulary item
// (§3). Exactly one of FlashcardTSV or Error is set.
type ProcessingResult struct {
	Position         int    `json:"position"`
	Term             string `json:"term"`
	FlashcardTSV     string `json:"flashcard_tsv,omitempty"`
	Error            string `json:"error,omitempty"`
	FromCache        bool   `json:"from_cache"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// Success reports whether the item completed without error.
func (r ProcessingResult) Success() bool {
	return r.Error == ""
}

// BatchProgress is the running tally surfaced to progress callbacks and the
// final report (§3, §4.8).
type BatchProgress struct {
	BatchID     string  `json:"batch_id"`
	Total       int     `json:"total"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	InProgress  int     `json:"in_progress"`
	ItemsPerSec float64 `json:"items_per_second"`
	ETA         time.Duration `json:"eta"`
}

// Batch is a unit of orchestrator work: a set of vocabulary items processed
// together under one batch id.
type Batch struct {
	BatchID string           `json:"batch_id"`
	Items   []VocabularyItem `json:"items"`
	Stage   Stage            `json:"stage"`
}
