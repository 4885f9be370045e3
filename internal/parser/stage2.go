package parser

import (
	"strconv"
	"strings"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/errs"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

const minStage2Columns = 8

// ParseStage2TSV implements the tolerant TSV parser (§4.5 "Stage-2"): skip an
// optional header line, split each remaining line on tab, require at least
// minStage2Columns fields, and skip bad lines individually rather than
// failing the whole response — the resolved "two Stage2Response parsers"
// Open Question (DESIGN.md) adopts this behavior uniformly. The response is
// rejected only when zero rows parse.
func ParseStage2TSV(raw string) (model.Stage2Result, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	var rows []model.FlashcardRow
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if isHeaderLine(fields) {
			continue
		}
		row, ok := parseRow(fields)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return model.Stage2Result{}, errs.New(errs.Parsing, "stage2 output produced zero valid rows")
	}
	return model.Stage2Result{Rows: rows}, nil
}

func isHeaderLine(fields []string) bool {
	return len(fields) > 0 && strings.EqualFold(strings.TrimSpace(fields[0]), "position")
}

func parseRow(fields []string) (model.FlashcardRow, bool) {
	if len(fields) < minStage2Columns {
		return model.FlashcardRow{}, false
	}

	position, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || position <= 0 {
		return model.FlashcardRow{}, false
	}
	termNumber, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil || termNumber <= 0 {
		return model.FlashcardRow{}, false
	}
	tabName, ok := model.ValidTabName(strings.TrimSpace(fields[3]))
	if !ok {
		return model.FlashcardRow{}, false
	}

	row := model.FlashcardRow{
		Position:    position,
		TermWithIPA: fields[1],
		TermNumber:  termNumber,
		TabName:     tabName,
		Primer:      fields[4],
		Front:       fields[5],
		Back:        fields[6],
		Tags:        fields[7],
	}
	if len(fields) >= 9 {
		row.HonorificLevel = fields[8]
	}
	return row, true
}

// MergeStage2 concatenates multiple Stage-2 results, renumbering positions
// sequentially starting at 1 (mirrors FlashcardOutputParser.merge_flashcards,
// used when a vocabulary item yields more rows than one response carries).
func MergeStage2(results ...model.Stage2Result) model.Stage2Result {
	var merged model.Stage2Result
	next := 1
	for _, r := range results {
		for _, row := range r.Rows {
			row.Position = next
			merged.Rows = append(merged.Rows, row)
			next++
		}
	}
	return merged
}
