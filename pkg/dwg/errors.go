package dwg

import (
	"fmt"
	"strings"
)

// Warning codes recorded while parsing.
const (
	WarnDegenerateLine   = "degenerate-line"
	WarnShortPolyline    = "short-polyline"
	WarnFlatOutline      = "flat-outline"
	WarnBadRadius        = "bad-radius"
	WarnUnknownKind      = "unknown-kind"
	WarnTruncatedRecord  = "truncated-record"
	WarnUnsupportedShape = "unsupported-shape"
)

// Warning is a non-fatal finding recorded while parsing a drawing.
// Record is the index of the offending input record, or -1 when the warning
// is not tied to a specific record.
type Warning struct {
	Code    string `json:"code"`
	Record  int    `json:"record"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	if w.Record >= 0 {
		return fmt.Sprintf("[%s] record %d: %s", w.Code, w.Record, w.Message)
	}
	return fmt.Sprintf("[%s] %s", w.Code, w.Message)
}

// ParseError reports that a drawing could not be parsed into any usable
// entities. Reasons lists every independent failure found before giving up.
type ParseError struct {
	Reasons []string
}

func (e *ParseError) Error() string {
	if len(e.Reasons) == 0 {
		return "dwg: parse failed"
	}
	return "dwg: parse failed: " + strings.Join(e.Reasons, "; ")
}
