package parser

import (
	"testing"

	"citypulse/models"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  bool
		expected *Classification
	}{
		{
			name: "valid JSON response",
			response: `{
				"issue_type": "WATER",
				"priority": "HIGH",
				"analysis": "A burst pipe is flooding the street. Immediate repair is recommended."
			}`,
			wantErr: false,
			expected: &Classification{
				IssueType: models.IssueTypeWater,
				Priority:  models.PriorityHigh,
				Analysis:  "A burst pipe is flooding the street. Immediate repair is recommended.",
			},
		},
		{
			name: "JSON wrapped in markdown code block",
			response: "```json\n" + `{
				"issue_type": "POTHOLE",
				"priority": "MEDIUM",
				"analysis": "Large pothole on a busy road."
			}` + "\n```",
			wantErr: false,
			expected: &Classification{
				IssueType: models.IssueTypePothole,
				Priority:  models.PriorityMedium,
				Analysis:  "Large pothole on a busy road.",
			},
		},
		{
			name: "JSON with surrounding prose",
			response: `Here is the classification: {"issue_type": "GARBAGE", "priority": "LOW", "analysis": "Overflowing bin."} Let me know if you need more.`,
			wantErr:  false,
			expected: &Classification{
				IssueType: models.IssueTypeGarbage,
				Priority:  models.PriorityLow,
				Analysis:  "Overflowing bin.",
			},
		},
		{
			name: "unknown issue type falls back to OTHER",
			response: `{
				"issue_type": "VOLCANO",
				"priority": "CRITICAL",
				"analysis": "Something unusual."
			}`,
			wantErr: false,
			expected: &Classification{
				IssueType: models.IssueTypeOther,
				Priority:  models.PriorityCritical,
				Analysis:  "Something unusual.",
			},
		},
		{
			name: "unknown priority falls back to MEDIUM",
			response: `{
				"issue_type": "STREETLIGHT",
				"priority": "EXTREME",
				"analysis": "Broken lamp post."
			}`,
			wantErr: false,
			expected: &Classification{
				IssueType: models.IssueTypeStreetlight,
				Priority:  models.PriorityMedium,
				Analysis:  "Broken lamp post.",
			},
		},
		{
			name: "lowercase enum values are normalized",
			response: `{
				"issue_type": "water",
				"priority": "high",
				"analysis": "Leaking main."
			}`,
			wantErr: false,
			expected: &Classification{
				IssueType: models.IssueTypeWater,
				Priority:  models.PriorityHigh,
				Analysis:  "Leaking main.",
			},
		},
		{
			name:     "missing analysis gets a placeholder",
			response: `{"issue_type": "DRAINAGE", "priority": "HIGH"}`,
			wantErr:  false,
			expected: &Classification{
				IssueType: models.IssueTypeDrainage,
				Priority:  models.PriorityHigh,
				Analysis:  "AI analysis not available",
			},
		},
		{
			name:     "malformed JSON",
			response: `{"issue_type": "WATER", "priority":`,
			wantErr:  true,
		},
		{
			name:     "empty response",
			response: "",
			wantErr:  true,
		},
		{
			name:     "plain prose without JSON",
			response: "I could not classify this issue.",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClassification(tt.response)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClassification() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.IssueType != tt.expected.IssueType {
				t.Errorf("IssueType = %v, want %v", got.IssueType, tt.expected.IssueType)
			}
			if got.Priority != tt.expected.Priority {
				t.Errorf("Priority = %v, want %v", got.Priority, tt.expected.Priority)
			}
			if got.Analysis != tt.expected.Analysis {
				t.Errorf("Analysis = %q, want %q", got.Analysis, tt.expected.Analysis)
			}
		})
	}
}

func TestExtractJSONFromMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain JSON",
			input:    `{"issue_type": "WATER"}`,
			expected: `{"issue_type": "WATER"}`,
		},
		{
			name:     "fenced with language",
			input:    "```json\n{\"issue_type\": \"WATER\"}\n```",
			expected: `{"issue_type": "WATER"}`,
		},
		{
			name:     "fenced without language",
			input:    "```\n{\"issue_type\": \"WATER\"}\n```",
			expected: `{"issue_type": "WATER"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSONFromMarkdown(tt.input); got != tt.expected {
				t.Errorf("extractJSONFromMarkdown() = %q, want %q", got, tt.expected)
			}
		})
	}
}
