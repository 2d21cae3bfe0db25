// Package review fuses CI check results and AI code review into one
// recommended action for the cycle controller: wait, merge, or send the
// agent back to fix things.
package review

import (
	"fmt"
	"strings"

	"issueflow/pkg/github"
)

// Severity grades a review finding. CRITICAL blocks a merge.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityMajor    Severity = "MAJOR"
	SeverityMinor    Severity = "MINOR"
)

// ReviewDecision is the verdict of an AI code review.
type ReviewDecision string

const (
	DecisionApproved         ReviewDecision = "APPROVED"
	DecisionChangesRequested ReviewDecision = "CHANGES_REQUESTED"
	DecisionComment          ReviewDecision = "COMMENT"
)

// ReviewIssue is a single finding from a code review.
type ReviewIssue struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	File        string   `json:"file,omitempty"`
	Line        int      `json:"line,omitempty"`
	Suggestion  string   `json:"suggestion,omitempty"`
}

// ReviewResult is the structured outcome of one AI code review. Raw
// holds the model's prose when it answered outside the structured
// contract.
type ReviewResult struct {
	Decision        ReviewDecision `json:"decision"`
	Summary         string         `json:"summary"`
	Issues          []ReviewIssue  `json:"issues,omitempty"`
	Positives       []string       `json:"positive_aspects,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Raw             string         `json:"-"`
}

// HasCritical reports whether any finding is CRITICAL.
func (r ReviewResult) HasCritical() bool {
	for i := range r.Issues {
		if r.Issues[i].Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// ToGitHubComment renders the review as a markdown PR comment.
func (r ReviewResult) ToGitHubComment() string {
	var b strings.Builder
	b.WriteString("# 🤖 AI Code Review\n\n## Summary\n\n")
	b.WriteString(r.Summary)
	b.WriteString("\n\n")

	switch r.Decision {
	case DecisionApproved:
		b.WriteString("**Status:** ✅ APPROVED\n")
	case DecisionChangesRequested:
		b.WriteString("**Status:** 🔄 CHANGES REQUESTED\n")
	default:
		b.WriteString("**Status:** 💬 COMMENT\n")
	}

	if len(r.Issues) > 0 {
		b.WriteString("\n## Issues Found\n")
		for i := range r.Issues {
			issue := &r.Issues[i]
			fmt.Fprintf(&b, "\n### [%s] %s\n", issue.Severity, issue.Description)
			if issue.File != "" {
				fmt.Fprintf(&b, "- **File:** `%s`\n", issue.File)
			}
			if issue.Line > 0 {
				fmt.Fprintf(&b, "- **Line:** %d\n", issue.Line)
			}
			if issue.Suggestion != "" {
				fmt.Fprintf(&b, "- **Suggestion:** %s\n", issue.Suggestion)
			}
		}
	}

	if len(r.Positives) > 0 {
		b.WriteString("\n## ✨ Positive Aspects\n\n")
		for _, aspect := range r.Positives {
			b.WriteString("- " + aspect + "\n")
		}
	}

	if len(r.Recommendations) > 0 {
		b.WriteString("\n## 💡 Recommendations\n\n")
		for _, rec := range r.Recommendations {
			b.WriteString("- " + rec + "\n")
		}
	}

	b.WriteString("\n---\n*This review was generated automatically.*")
	return b.String()
}

// Action is the engine's recommended next step.
type Action string

const (
	ActionWait         Action = "wait"
	ActionFixCI        Action = "fix_ci"
	ActionRequestFixes Action = "request_fixes"
	ActionMerge        Action = "merge"
)

// Decision is the engine's fused verdict plus the evidence behind it.
// PendingChecks is set for wait; FailedChecks and Issues carry the raw
// material the feedback builder renders for fix actions.
type Decision struct {
	Action        Action
	Reason        string
	PendingChecks []string
	FailedChecks  []github.CICheckResult
	ReviewSummary string
	Issues        []ReviewIssue
}
