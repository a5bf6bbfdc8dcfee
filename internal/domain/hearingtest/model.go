// Package hearingtest models a recorded hearing test shown on the profile page.
package hearingtest

import "fmt"

// Result is one row of the hearing_tests table.
type Result struct {
	ID           string
	TestDate     string
	TestType     string
	OverallScore float64
}

// FromRow reads a Result from a backend row. Missing columns stay zero.
func FromRow(row map[string]any) Result {
	r := Result{}
	if v, ok := row["id"].(string); ok {
		r.ID = v
	}
	if v, ok := row["test_date"].(string); ok {
		r.TestDate = v
	}
	if v, ok := row["test_type"].(string); ok {
		r.TestType = v
	}
	switch v := row["overall_score"].(type) {
	case float64:
		r.OverallScore = v
	case int64:
		r.OverallScore = float64(v)
	}
	return r
}

// Score formats the overall score for display.
func (r Result) Score() string {
	return fmt.Sprintf("%.0f%%", r.OverallScore)
}
