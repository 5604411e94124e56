package secrets

import (
	"github.com/Mathfer/Bot-gemini-middleware/internal/types"
)

// Detection is a credential found in an event field.
type Detection struct {
	Field       string // canonical event field, empty for Scan
	PatternName string
	Start       int // byte offset
	End         int // byte offset
}

// Scanner looks for credentials in free-text fields. It only reports;
// callers decide what to do with a detection.
type Scanner struct {
	patterns []Pattern
}

func NewScanner() *Scanner {
	return &Scanner{patterns: DefaultPatterns()}
}

// Scan checks a single string.
func (s *Scanner) Scan(text string) []Detection {
	var detections []Detection
	for _, p := range s.patterns {
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			detections = append(detections, Detection{
				PatternName: p.Name,
				Start:       loc[0],
				End:         loc[1],
			})
		}
	}
	return detections
}

// scannedFields are the fields that carry customer-written text.
var scannedFields = []string{"context", "question", "generatedReply"}

// ScanEvent checks the free-text fields of an event.
func (s *Scanner) ScanEvent(ev types.Event) []Detection {
	var detections []Detection
	for _, name := range scannedFields {
		for _, d := range s.Scan(ev.Get(name)) {
			d.Field = name
			detections = append(detections, d)
		}
	}
	return detections
}
