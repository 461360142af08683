package domain

// AnalysisResult is the analyzer's structured output, validated once at the
// adapter boundary so downstream components consume a typed value instead of
// re-checking loose maps.
type AnalysisResult struct {
	Category        string            `json:"category"`
	Subtype         string            `json:"subtype"`
	Title           string            `json:"title"`
	Date            string            `json:"date,omitempty"`
	Doctor          string            `json:"doctor,omitempty"`
	Specialty       string            `json:"specialty,omitempty"`
	Clinic          string            `json:"clinic,omitempty"`
	Summary         string            `json:"summary,omitempty"`
	Conclusion      string            `json:"conclusion,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
	Fields          map[string]string `json:"fields,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	Confidence      float64           `json:"confidence,omitempty"`
}

// FallbackAnalysis is substituted when the analyzer fails outright, so the
// submission still produces a reviewable document instead of being lost.
func FallbackAnalysis(filename string) AnalysisResult {
	title := "Документ (требует ручной проверки)"
	if filename != "" {
		title = filename
	}
	return AnalysisResult{
		Category: "other",
		Subtype:  "other",
		Title:    title,
		Tags:     []string{"needs-review"},
	}
}
