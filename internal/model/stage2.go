package model

import (
	"strconv"
	"strings"
)

// TabName is the fixed set a FlashcardRow's TabName must belong to (§3).
type TabName string

const (
	TabScene             TabName = "Scene"
	TabUsageComparison    TabName = "Usage-Comparison"
	TabHanja             TabName = "Hanja"
	TabGrammar           TabName = "Grammar"
	TabFormalCasual      TabName = "Formal-Casual"
	TabExample           TabName = "Example"
	TabCultural          TabName = "Cultural"
)

var validTabNames = map[TabName]bool{
	TabScene: true, TabUsageComparison: true, TabHanja: true,
	TabGrammar: true, TabFormalCasual: true, TabExample: true, TabCultural: true,
}

// ValidTabName reports whether name is one of the fixed enumeration members.
func ValidTabName(name string) (TabName, bool) {
	t := TabName(name)
	return t, validTabNames[t]
}

// FlashcardRow is one row of a Stage-2 result.
type FlashcardRow struct {
	Position       int     `json:"position"`
	TermWithIPA    string  `json:"term_with_ipa"`
	TermNumber     int     `json:"term_number"`
	TabName        TabName `json:"tab_name"`
	Primer         string  `json:"primer"`
	Front          string  `json:"front"`
	Back           string  `json:"back"`
	Tags           string  `json:"tags"`
	HonorificLevel string  `json:"honorific_level"`
}

const stage2Columns = 9

// ToTSV renders the row as a single tab-separated line, in column order.
func (r FlashcardRow) ToTSV() string {
	fields := []string{
		strconv.Itoa(r.Position),
		r.TermWithIPA,
		strconv.Itoa(r.TermNumber),
		string(r.TabName),
		r.Primer,
		r.Front,
		r.Back,
		r.Tags,
		r.HonorificLevel,
	}
	return strings.Join(fields, "\t")
}

// Stage2Result is the ordered sequence of flashcard rows produced by the
// second model call for one vocabulary item.
type Stage2Result struct {
	Rows []FlashcardRow `json:"rows"`
}

// ToTSV renders every row, one per line, newline-joined with no trailing
// newline. The §3 round-trip invariant requires this to be the identity
// under ParseStage2TSV -> ToTSV (modulo normalized whitespace); the parser
// is responsible for upholding that.
func (s Stage2Result) ToTSV() string {
	lines := make([]string, len(s.Rows))
	for i, row := range s.Rows {
		lines[i] = row.ToTSV()
	}
	return strings.Join(lines, "\n")
}

// HeaderRow is the optional header line the tolerant parser recognizes and
// skips (case-insensitive match on the first field).
const HeaderRow = "position\tterm\tterm_number\ttab_name\tprimer\tfront\tback\ttags\thonorific_level"
