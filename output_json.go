package cssaudit

import (
	"encoding/json"
	"io"
	"time"

	"github.com/yacobolo/cssaudit/internal/audit"
)

// JSONOutput represents the structured JSON export schema
type JSONOutput struct {
	Version   string          `json:"version"`
	Timestamp string          `json:"timestamp"`
	Summary   JSONSummary     `json:"summary"`
	Stats     ScanStats       `json:"stats"`
	Files     []FileResult    `json:"files"`
	Variables VariablesReport `json:"variables"`
	Issues    []Diagnostic    `json:"issues"`
}

// JSONSummary contains the health score and diagnostic counts
type JSONSummary struct {
	HealthScore int    `json:"health_score"`
	Status      Health `json:"status"`
	TotalIssues int    `json:"total_issues"`
	Critical    int    `json:"critical"`
	High        int    `json:"high"`
	Medium      int    `json:"medium"`
	Low         int    `json:"low"`
}

// WriteJSON writes the audit result as JSON
func WriteJSON(w io.Writer, result *Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildJSONOutput(result))
}

// buildJSONOutput converts a Result to JSONOutput
func buildJSONOutput(result *Result) JSONOutput {
	counts := audit.CountBySeverity(result.Analysis.Errors)

	files := result.Files
	if files == nil {
		files = []FileResult{}
	}
	issues := append([]Diagnostic{}, result.Analysis.Errors...)
	audit.SortDiagnostics(issues)

	return JSONOutput{
		Version:   "1.0",
		Timestamp: result.Analysis.Timestamp.Format(time.RFC3339),
		Summary: JSONSummary{
			HealthScore: result.Analysis.HealthScore,
			Status:      result.Analysis.Status,
			TotalIssues: len(result.Analysis.Errors),
			Critical:    counts[audit.SeverityCritical],
			High:        counts[audit.SeverityHigh],
			Medium:      counts[audit.SeverityMedium],
			Low:         counts[audit.SeverityLow],
		},
		Stats:     result.Stats,
		Files:     files,
		Variables: result.Variables,
		Issues:    issues,
	}
}
