package review

import (
	"context"
	"fmt"
	"strings"

	"issueflow/pkg/agent/llm"
	"issueflow/pkg/github"
	"issueflow/pkg/logx"
	"issueflow/pkg/tools"
	"issueflow/pkg/utils"
)

const submitReviewTool = "submit_review"

// submitReviewDefinition is the schema the model answers through.
// Offering it as the only tool with a forced tool choice turns the
// review into structured output instead of free text to regex over.
var submitReviewDefinition = tools.ToolDefinition{
	Name:        submitReviewTool,
	Description: "Submit the structured result of your code review. Call exactly once with the complete review.",
	InputSchema: tools.InputSchema{
		Type: "object",
		Properties: map[string]tools.Property{
			"decision": {
				Type:        "string",
				Enum:        []string{"APPROVED", "CHANGES_REQUESTED", "COMMENT"},
				Description: "Overall verdict on the changes.",
			},
			"summary": {
				Type:        "string",
				Description: "Brief summary of the changes and overall assessment.",
			},
			"issues": {
				Type:        "array",
				Description: "Problems found, worst first. Leave empty when the changes are clean.",
				Items: &tools.Property{
					Type: "object",
					Properties: map[string]*tools.Property{
						"severity":    {Type: "string", Enum: []string{"CRITICAL", "MAJOR", "MINOR"}},
						"description": {Type: "string"},
						"file":        {Type: "string"},
						"line":        {Type: "integer"},
						"suggestion":  {Type: "string"},
					},
				},
			},
			"positive_aspects": {
				Type:  "array",
				Items: &tools.Property{Type: "string"},
			},
			"recommendations": {
				Type:  "array",
				Items: &tools.Property{Type: "string"},
			},
		},
		Required: []string{"decision", "summary"},
	},
}

const reviewSystemPrompt = `You are a senior code reviewer performing automated code review.
Analyze the provided code changes against the original requirements.

Check for:
1. Correctness - Does the code solve the stated problem?
2. Code Quality - Is the code clean, readable, and maintainable?
3. Error Handling - Are edge cases and errors handled properly?
4. Security - Are there any security vulnerabilities?
5. Performance - Are there obvious performance issues?
6. Testing - Is the code testable? Are tests included if needed?
7. Requirements Match - Does the implementation match all requirements?

Report your review by calling submit_review exactly once with your
decision, a summary, and every issue you found. Severity guide:
CRITICAL blocks the merge, MAJOR should be fixed, MINOR is advisory.`

// AIReviewer performs the LLM-backed code review of a pull request and
// posts the rendered review as a PR comment.
type AIReviewer struct {
	client llm.LLMClient
	github github.GitHubClient
	logger *logx.Logger

	// Instructions is repo-local review guidance appended to the
	// system prompt. Optional; set before the first Review call.
	Instructions string
}

// NewAIReviewer builds a reviewer over the given LLM and GitHub clients.
func NewAIReviewer(client llm.LLMClient, gh github.GitHubClient, logger *logx.Logger) *AIReviewer {
	if logger == nil {
		logger = logx.NewLogger("reviewer")
	}
	return &AIReviewer{client: client, github: gh, logger: logger}
}

// Review fetches the PR diff, asks the model for a structured review,
// and publishes the result. Implements Reviewer.
func (r *AIReviewer) Review(ctx context.Context, snap *github.PRSnapshot, issueText string) (ReviewResult, error) {
	diff, err := r.github.GetPRDiff(ctx, snap.Number)
	if err != nil {
		return ReviewResult{}, fmt.Errorf("fetching diff for PR #%d: %w", snap.Number, err)
	}

	req := llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage(reviewSystemPrompt + r.Instructions),
			llm.NewUserMessage(buildReviewPrompt(snap, issueText, diff)),
		},
		Tools:       []tools.ToolDefinition{submitReviewDefinition},
		ToolChoice:  "any",
		MaxTokens:   llm.ReviewerMaxTokens,
		Temperature: llm.TemperatureDefault,
	}

	resp, err := r.client.Complete(ctx, req)
	if err != nil {
		return ReviewResult{}, fmt.Errorf("review completion failed: %w", err)
	}

	result := parseResponse(resp)
	r.logger.Info("Review of PR #%d: %s (%d issues)", snap.Number, result.Decision, len(result.Issues))
	r.postReview(ctx, snap.Number, result)
	return result, nil
}

// postReview publishes the review as a PR comment. Posting is advisory:
// a failure must not abort the decision round.
func (r *AIReviewer) postReview(ctx context.Context, prNumber int, result ReviewResult) {
	if err := r.github.CommentOnPR(ctx, prNumber, result.ToGitHubComment()); err != nil {
		r.logger.Warn("Could not post review to PR #%d: %v", prNumber, err)
	}
}

func buildReviewPrompt(snap *github.PRSnapshot, issueText, diff string) string {
	var b strings.Builder

	b.WriteString("# Original Requirements\n\n")
	if strings.TrimSpace(issueText) == "" {
		b.WriteString("No specific requirements provided.")
	} else {
		b.WriteString(issueText)
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "# Changes to Review\n\nPR #%d: %s (%s into %s)\n\n",
		snap.Number, snap.Title, snap.HeadBranch, snap.BaseBranch)
	b.WriteString("## Diff\n\n```diff\n")
	b.WriteString(diff)
	b.WriteString("\n```\n\n")

	b.WriteString("# CI Results\n\n")
	b.WriteString(formatCIResults(snap))
	b.WriteString("\n\n")

	b.WriteString("# Review Task\n\n")
	b.WriteString("Review the changes above against the original requirements.\n")
	b.WriteString("Check for correctness, code quality, security, and completeness.\n")
	b.WriteString("Submit your conclusions with submit_review.")
	return b.String()
}

func formatCIResults(snap *github.PRSnapshot) string {
	if len(snap.Checks) == 0 {
		return "No CI checks configured."
	}

	lines := []string{"CI status:"}
	for i := range snap.Checks {
		check := &snap.Checks[i]
		state := check.Conclusion
		if state == "" {
			state = check.Status
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", check.Name, state))
		if check.Output != nil && check.Output.Summary != "" {
			summary := check.Output.Summary
			if len(summary) > 200 {
				summary = summary[:200]
			}
			lines = append(lines, "  Output: "+summary)
		}
	}

	overall := "All checks passed"
	if !snap.CIPassed() {
		overall = "Some checks failed"
	}
	lines = append(lines, "", "Overall: "+overall)
	return strings.Join(lines, "\n")
}

// parseResponse extracts the structured review from the model response,
// falling back to a COMMENT decision wrapping the prose when the model
// ignored the forced tool.
func parseResponse(resp llm.CompletionResponse) ReviewResult {
	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].Name == submitReviewTool {
			return parseSubmitReview(resp.ToolCalls[i].Parameters)
		}
	}
	return ReviewResult{
		Decision: DecisionComment,
		Summary:  strings.TrimSpace(resp.Content),
		Raw:      resp.Content,
	}
}

func parseSubmitReview(params map[string]any) ReviewResult {
	result := ReviewResult{
		Decision: normalizeDecision(utils.GetMapFieldOr(params, "decision", "")),
		Summary:  utils.GetMapFieldOr(params, "summary", "Review completed."),
	}

	for _, raw := range utils.GetMapFieldOr[[]any](params, "issues", nil) {
		item, err := utils.AssertMapStringAny(raw)
		if err != nil {
			continue
		}
		issue := ReviewIssue{
			Severity:    Severity(strings.ToUpper(utils.GetMapFieldOr(item, "severity", string(SeverityMinor)))),
			Description: utils.GetMapFieldOr(item, "description", ""),
			File:        utils.GetMapFieldOr(item, "file", ""),
			Suggestion:  utils.GetMapFieldOr(item, "suggestion", ""),
		}
		// JSON numbers decode as float64.
		switch v := item["line"].(type) {
		case float64:
			issue.Line = int(v)
		case int:
			issue.Line = v
		}
		if issue.Description == "" {
			continue
		}
		result.Issues = append(result.Issues, issue)
	}

	result.Positives = stringList(params, "positive_aspects")
	result.Recommendations = stringList(params, "recommendations")
	return result
}

func normalizeDecision(raw string) ReviewDecision {
	switch ReviewDecision(strings.ToUpper(strings.TrimSpace(raw))) {
	case DecisionApproved:
		return DecisionApproved
	case DecisionChangesRequested:
		return DecisionChangesRequested
	default:
		return DecisionComment
	}
}

func stringList(params map[string]any, key string) []string {
	var out []string
	for _, raw := range utils.GetMapFieldOr[[]any](params, key, nil) {
		if s, ok := utils.SafeAssert[string](raw); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
