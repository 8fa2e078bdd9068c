package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"citypulse/parser"
)

const classifyPrompt = `You are an AI assistant helping to classify civic issues for a city management system.

Analyze the following civic issue report and provide:
1. Issue Type (choose one): POTHOLE, GARBAGE, WATER, STREETLIGHT, ELECTRICITY, DRAINAGE, ROAD_OBSTRUCTION, OTHER
2. Priority Level (choose one): LOW, MEDIUM, HIGH, CRITICAL
3. Brief Analysis (2-3 sentences explaining the issue and recommended action)

Issue Details:
Title: %s
Description: %s
Location: %s

Respond ONLY with a JSON object in this exact format:
{
    "issue_type": "TYPE_HERE",
    "priority": "PRIORITY_HERE",
    "analysis": "Your analysis here"
}`

const reportPrompt = `Generate a brief executive summary for city authorities based on the following civic issues data:

Total Issues: %d
Pending: %d
In Progress: %d
Resolved: %d

Issue Types: %s
Priority Breakdown: %s

Provide:
1. A brief overview (2-3 sentences)
2. Top 3 areas of concern
3. Recommended immediate actions

Keep the response concise and actionable.`

type part struct {
	Text string `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type geminiRequest struct {
	Contents []content `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// ReportStats is the aggregate input for authority report generation.
type ReportStats struct {
	TotalIssues       int
	PendingIssues     int
	InProgressIssues  int
	ResolvedIssues    int
	TypeBreakdown     map[string]int
	PriorityBreakdown map[string]int
}

// Client is the AI classifier gateway. Every failure mode (transport error,
// quota/rate limit, non-parseable body) surfaces as a single error value;
// callers never see a panic or a partial result.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Gemini client
func NewClient(apiKey, model, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SourceName returns the provider label persisted alongside AI results.
func (c *Client) SourceName() string {
	return "Gemini"
}

// ClassifyIssue classifies a civic issue from its title, description and
// address and returns a validated classification.
func (c *Client) ClassifyIssue(ctx context.Context, title, description, address string) (*parser.Classification, error) {
	prompt := fmt.Sprintf(classifyPrompt, title, description, address)

	text, err := c.generateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	classification, err := parser.ParseClassification(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse classification response: %w", err)
	}

	return classification, nil
}

// GenerateAuthorityReport produces executive summary prose over an aggregate
// view of the issue corpus. Failure degrades to a text message rather than an
// error, since the report is advisory.
func (c *Client) GenerateAuthorityReport(ctx context.Context, stats ReportStats) string {
	typeJSON, _ := json.Marshal(stats.TypeBreakdown)
	priorityJSON, _ := json.Marshal(stats.PriorityBreakdown)

	prompt := fmt.Sprintf(reportPrompt,
		stats.TotalIssues,
		stats.PendingIssues,
		stats.InProgressIssues,
		stats.ResolvedIssues,
		string(typeJSON),
		string(priorityJSON),
	)

	text, err := c.generateContent(ctx, prompt)
	if err != nil {
		return fmt.Sprintf("%s: %v", DegradedReportPrefix, err)
	}

	return text
}

// DegradedReportPrefix starts every report produced without the model, so
// callers can tell advisory fallback text from real output.
const DegradedReportPrefix = "Report generation failed"

func (c *Client) generateContent(ctx context.Context, prompt string) (string, error) {
	reqBody := geminiRequest{
		Contents: []content{
			{
				Role:  "user",
				Parts: []part{{Text: prompt}},
			},
		},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("API quota exceeded (status 429): %s", string(bodyBytes))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var gr geminiResponse
	if err := json.Unmarshal(bodyBytes, &gr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	return gr.Candidates[0].Content.Parts[0].Text, nil
}

// Classifier is the gateway contract the issue lifecycle depends on. The
// concrete Client satisfies it; tests substitute fakes.
type Classifier interface {
	ClassifyIssue(ctx context.Context, title, description, address string) (*parser.Classification, error)
	GenerateAuthorityReport(ctx context.Context, stats ReportStats) string
	SourceName() string
}

var _ Classifier = (*Client)(nil)
