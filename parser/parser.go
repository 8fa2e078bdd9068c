package parser

import (
	"encoding/json"
	"errors"
	"strings"

	"citypulse/models"
)

// Classification is the validated result of an AI classification pass.
// Enum values are always members of the closed issue type / priority sets;
// unrecognized values from the model fall back to OTHER / MEDIUM.
type Classification struct {
	IssueType models.IssueType
	Priority  models.IssuePriority
	Analysis  string
}

// rawClassification mirrors the JSON the model is prompted to emit.
type rawClassification struct {
	IssueType string `json:"issue_type"`
	Priority  string `json:"priority"`
	Analysis  string `json:"analysis"`
}

// extractJSONFromMarkdown extracts JSON from markdown code blocks
func extractJSONFromMarkdown(response string) string {
	startMarker := "```"
	endMarker := "```"

	startIdx := strings.Index(response, startMarker)
	if startIdx == -1 {
		// No code block found, try to find JSON object directly
		startIdx = strings.Index(response, "{")
		if startIdx == -1 {
			return response
		}
		endIdx := strings.LastIndex(response, "}")
		if endIdx == -1 {
			return response
		}
		return strings.TrimSpace(response[startIdx : endIdx+1])
	}

	// Find the end of the first code block
	endIdx := strings.Index(response[startIdx+len(startMarker):], endMarker)
	if endIdx == -1 {
		return response
	}
	endIdx += startIdx + len(startMarker)

	content := response[startIdx+len(startMarker) : endIdx]

	// Remove the language identifier if present (e.g., "json")
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 0 && (strings.TrimSpace(lines[0]) == "json" || strings.TrimSpace(lines[0]) == "") {
		content = strings.Join(lines[1:], "\n")
	}

	return strings.TrimSpace(content)
}

// ParseClassification parses the model response into a validated
// Classification. Malformed JSON is an error; unknown enum values are not —
// they degrade deterministically to the catch-all type and default priority.
func ParseClassification(response string) (*Classification, error) {
	cleaned := strings.TrimSpace(response)
	if cleaned == "" {
		return nil, errors.New("empty classification response")
	}

	jsonContent := extractJSONFromMarkdown(cleaned)

	var raw rawClassification
	if err := json.Unmarshal([]byte(jsonContent), &raw); err != nil {
		return nil, errors.New("failed to parse JSON response: " + err.Error())
	}

	analysis := strings.TrimSpace(raw.Analysis)
	if analysis == "" {
		analysis = "AI analysis not available"
	}

	return &Classification{
		IssueType: models.ParseIssueType(strings.ToUpper(strings.TrimSpace(raw.IssueType))),
		Priority:  models.ParseIssuePriority(strings.ToUpper(strings.TrimSpace(raw.Priority))),
		Analysis:  analysis,
	}, nil
}
