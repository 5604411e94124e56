package injection

import "github.com/Mathfer/Bot-gemini-middleware/internal/types"

// Detection records a matched injection pattern.
type Detection struct {
	Field    string
	RuleName string
	Severity float64
	Category string
	Start    int
	End      int
}

// Scanner looks for prompt injection attempts in the text that ends up in
// the completion prompt. Detections are signals for logs and metrics; the
// relay never blocks on them.
type Scanner struct {
	rules []Rule
}

func NewScanner() *Scanner {
	return &Scanner{rules: DefaultRules()}
}

// Scan checks a single string.
func (s *Scanner) Scan(text string) []Detection {
	var detections []Detection
	for _, r := range s.rules {
		for _, loc := range r.Regex.FindAllStringIndex(text, -1) {
			detections = append(detections, Detection{
				RuleName: r.Name,
				Severity: r.Severity,
				Category: r.Category,
				Start:    loc[0],
				End:      loc[1],
			})
		}
	}
	return detections
}

// promptFields are the event fields that are sent to the completion gateway.
var promptFields = []string{"context", "question"}

// ScanEvent scans the prompt fields of ev and returns every detection and
// the highest severity seen.
func (s *Scanner) ScanEvent(ev types.Event) ([]Detection, float64) {
	var all []Detection
	score := 0.0
	for _, name := range promptFields {
		for _, d := range s.Scan(ev.Get(name)) {
			d.Field = name
			all = append(all, d)
			score = max(score, d.Severity)
		}
	}
	return all, score
}
