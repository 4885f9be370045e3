package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

func TestParseStage2TSV_SkipsHeaderLine(t *testing.T) {
	raw := model.HeaderRow + "\n1\t안녕 (annyeong)\t1\tScene\tprimer\tfront\tback\ttag\tinformal"
	result, err := ParseStage2TSV(raw)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, 1, result.Rows[0].Position)
	assert.Equal(t, model.TabScene, result.Rows[0].TabName)
}

func TestParseStage2TSV_SkipsBadLinesIndividually(t *testing.T) {
	raw := strings.Join([]string{
		"1\tterm1\t1\tScene\tprimer\tfront\tback\ttag\tinformal",
		"not-a-number\ttermX\t2\tScene\tp\tf\tb\tt\th", // bad position
		"2\tterm2\t2\tHanja\tprimer\tfront\tback\ttag\tformal",
	}, "\n")

	result, err := ParseStage2TSV(raw)
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, 1, result.Rows[0].Position)
	assert.Equal(t, 2, result.Rows[1].Position)
}

func TestParseStage2TSV_RejectsInvalidTabName(t *testing.T) {
	raw := "1\tterm1\t1\tNotARealTab\tprimer\tfront\tback\ttag\tinformal"
	_, err := ParseStage2TSV(raw)
	assert.Error(t, err, "the only row present has an invalid tab_name, so zero rows parse")
}

func TestParseStage2TSV_AcceptsMissingHonorificColumn(t *testing.T) {
	raw := "1\tterm1\t1\tScene\tprimer\tfront\tback\ttag"
	result, err := ParseStage2TSV(raw)
	require.NoError(t, err)
	assert.Equal(t, "", result.Rows[0].HonorificLevel)
}

func TestParseStage2TSV_ZeroValidRowsRejectsWholeResponse(t *testing.T) {
	raw := "garbage\tline\twith\tfew\tcolumns"
	_, err := ParseStage2TSV(raw)
	assert.Error(t, err)
}

func TestParseStage2TSV_RoundTripsThroughToTSV(t *testing.T) {
	raw := "1\t안녕\t1\tScene\tp\tf\tb\ttag\tinformal\n2\t안녕\t1\tHanja\tp2\tf2\tb2\ttag2\tformal"
	result, err := ParseStage2TSV(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, result.ToTSV())
}

func TestMergeStage2_RenumbersSequentially(t *testing.T) {
	a := model.Stage2Result{Rows: []model.FlashcardRow{{Position: 5, TabName: model.TabScene}}}
	b := model.Stage2Result{Rows: []model.FlashcardRow{{Position: 9, TabName: model.TabHanja}}}

	merged := MergeStage2(a, b)
	require.Len(t, merged.Rows, 2)
	assert.Equal(t, 1, merged.Rows[0].Position)
	assert.Equal(t, 2, merged.Rows[1].Position)
}
