package parser

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/errs"
)

// ArchivedOutput is one durably-stored successful parse (§4.5 "Archiving").
type ArchivedOutput struct {
	TaskID           string
	VocabularyID     int
	Stage            int
	RawOutput        string
	ParsedOutput     json.RawMessage
	TokensUsed       int
	ProcessingTimeMs float64
}

// Archiver persists successful parses keyed by (task_id, vocabulary_id,
// stage) and serves the most recent valid output per (vocabulary_id, stage).
// Grounded on OutputArchiver, retargeted from SQLite's processing_outputs
// table to the equivalent PostgreSQL table owned by internal/database.
type Archiver struct {
	db *sql.DB
}

// NewArchiver wraps db, whose schema is the processing_outputs table.
func NewArchiver(db *sql.DB) *Archiver {
	return &Archiver{db: db}
}

// ArchiveStage1 records a successful Stage-1 parse.
func (a *Archiver) ArchiveStage1(ctx context.Context, taskID string, vocabularyID int, rawOutput string, parsed any, tokensUsed int, processingTimeMs float64) error {
	return a.archive(ctx, taskID, vocabularyID, 1, rawOutput, parsed, tokensUsed, processingTimeMs)
}

// ArchiveStage2 records a successful Stage-2 parse.
func (a *Archiver) ArchiveStage2(ctx context.Context, taskID string, vocabularyID int, rawOutput string, parsed any, tokensUsed int, processingTimeMs float64) error {
	return a.archive(ctx, taskID, vocabularyID, 2, rawOutput, parsed, tokensUsed, processingTimeMs)
}

func (a *Archiver) archive(ctx context.Context, taskID string, vocabularyID, stage int, rawOutput string, parsed any, tokensUsed int, processingTimeMs float64) error {
	payload, err := json.Marshal(parsed)
	if err != nil {
		return errs.Wrap(errs.Parsing, err, "marshal archived output")
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO processing_outputs
			(task_id, vocabulary_id, stage, raw_output, parsed_output, tokens_used, processing_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, taskID, vocabularyID, stage, rawOutput, payload, tokensUsed, processingTimeMs)
	if err != nil {
		return errs.Wrap(errs.Database, err, "archive output")
	}
	return nil
}

// GetArchived returns the most recently archived output for
// (vocabularyID, stage), or nil if none exists.
func (a *Archiver) GetArchived(ctx context.Context, vocabularyID, stage int) (*ArchivedOutput, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT task_id, raw_output, parsed_output, tokens_used, processing_time_ms
		FROM processing_outputs
		WHERE vocabulary_id = $1 AND stage = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, vocabularyID, stage)

	var out ArchivedOutput
	out.VocabularyID = vocabularyID
	out.Stage = stage
	if err := row.Scan(&out.TaskID, &out.RawOutput, &out.ParsedOutput, &out.TokensUsed, &out.ProcessingTimeMs); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Wrap(errs.Database, err, "read archived output")
	}
	return &out, nil
}
