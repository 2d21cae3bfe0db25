package review

import (
	"fmt"
	"strings"
)

// maxFeedbackDetailLen caps raw check output folded into the feedback
// prompt so one noisy check cannot crowd out the rest.
const maxFeedbackDetailLen = 1000

// BuildFeedbackMessage renders a fix_ci or request_fixes decision as the
// user message for the agent's next turn: failed checks with their
// output, the review summary, and the findings with file, line, and
// suggestion carried verbatim.
func BuildFeedbackMessage(dec Decision) string {
	parts := []string{"CI/Review feedback - please fix the issues and push again:\n"}

	if len(dec.FailedChecks) > 0 {
		parts = append(parts, "FAILED CI CHECKS:")
		for i := range dec.FailedChecks {
			check := &dec.FailedChecks[i]
			conclusion := check.Conclusion
			if conclusion == "" {
				conclusion = "failed"
			}
			parts = append(parts, fmt.Sprintf("- %s: %s", check.Name, conclusion))
			if check.Output == nil {
				continue
			}
			if check.Output.Summary != "" {
				parts = append(parts, "  Error: "+check.Output.Summary)
			}
			if check.Output.Text != "" {
				parts = append(parts, "  Details: "+truncate(check.Output.Text, maxFeedbackDetailLen))
			}
			if len(check.Output.Annotations) > 0 {
				parts = append(parts, "  Errors at:")
				for _, ann := range check.Output.Annotations {
					parts = append(parts, fmt.Sprintf("    - %s:%d: %s", ann.Path, ann.Line, ann.Message))
				}
			}
		}
		parts = append(parts, "")
	}

	if dec.ReviewSummary != "" {
		parts = append(parts, fmt.Sprintf("REVIEW SUMMARY:\n%s\n", dec.ReviewSummary))
	}

	if len(dec.Issues) > 0 {
		parts = append(parts, "ISSUES TO FIX:")
		for i := range dec.Issues {
			issue := &dec.Issues[i]
			line := fmt.Sprintf("- [%s] %s", issue.Severity, issue.Description)
			if issue.File != "" {
				if issue.Line > 0 {
					line += fmt.Sprintf(" (file: %s:%d)", issue.File, issue.Line)
				} else {
					line += fmt.Sprintf(" (file: %s)", issue.File)
				}
			}
			if issue.Suggestion != "" {
				line += "\n  Suggestion: " + issue.Suggestion
			}
			parts = append(parts, line)
		}
		parts = append(parts, "")
	}

	if len(dec.FailedChecks) > 0 {
		parts = append(parts, "TIP: Run the failing checks locally (tests, linters) to reproduce the errors before pushing.")
		parts = append(parts, "")
	}

	parts = append(parts, "Fix the issues, commit, push, then call finish().")
	return strings.Join(parts, "\n")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
