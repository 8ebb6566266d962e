package enrich

import "strings"

// Sentinel values written into output cells. Skip-on-existing treats these as
// "not really filled" so a resumed or re-run job retries them.
const (
	// CellErrorSentinel marks a single cell whose provider call failed with a
	// non-pause-worthy category.
	CellErrorSentinel = "#ERROR"
	// RowErrorSentinel marks every configured output cell of a row that hit an
	// unexpected non-provider failure.
	RowErrorSentinel = "#ROW_ERROR"
)

// notAvailableMarkers are user conventions for "no value", compared case-insensitively.
var notAvailableMarkers = map[string]struct{}{
	"n/a": {},
	"na":  {},
	"":    {},
}

// IsFilled reports whether an output cell already holds a real value: non-empty
// after trimming and not a sentinel or an explicit not-available marker.
func IsFilled(cell string) bool {
	v := strings.TrimSpace(cell)
	if v == "" {
		return false
	}
	lower := strings.ToLower(v)
	if _, na := notAvailableMarkers[lower]; na {
		return false
	}
	switch lower {
	case strings.ToLower(CellErrorSentinel), strings.ToLower(RowErrorSentinel):
		return false
	}
	return true
}
