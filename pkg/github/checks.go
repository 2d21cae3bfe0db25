package github

import (
	"context"
	"encoding/json"
	"fmt"
)

// Check run statuses and conclusions as reported by the check-runs API.
const (
	CheckStatusQueued     = "queued"
	CheckStatusInProgress = "in_progress"
	CheckStatusCompleted  = "completed"

	CheckConclusionSuccess = "success"
	CheckConclusionFailure = "failure"
)

// Digest limits keep check output small enough to fold into a feedback prompt.
const (
	maxOutputTextLen = 2000
	maxAnnotations   = 10
)

// CheckAnnotation is a single file annotation attached to a check run.
type CheckAnnotation struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Message string `json:"message"`
	Level   string `json:"level"` // notice, warning, failure
}

// CheckOutput is the digest of a check run's structured output.
//
//nolint:govet // Logical grouping preferred over memory optimization
type CheckOutput struct {
	Title       string            `json:"title,omitempty"`
	Summary     string            `json:"summary,omitempty"`
	Text        string            `json:"text,omitempty"`
	Annotations []CheckAnnotation `json:"annotations,omitempty"`
	URL         string            `json:"url,omitempty"`
}

// CICheckResult is one check run against a PR's head commit.
type CICheckResult struct {
	Name       string       `json:"name"`
	Status     string       `json:"status"`               // queued, in_progress, completed
	Conclusion string       `json:"conclusion,omitempty"` // success, failure, neutral, cancelled, skipped, timed_out
	Output     *CheckOutput `json:"output,omitempty"`
}

// checkRunsResponse represents the check-runs API response.
//
//nolint:govet // fieldalignment: API response struct, field order matches API
type checkRunsResponse struct {
	TotalCount int           `json:"total_count"`
	CheckRuns  []rawCheckRun `json:"check_runs"`
}

type rawCheckRun struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	Status     string         `json:"status"`
	Conclusion string         `json:"conclusion"`
	HTMLURL    string         `json:"html_url"`
	Output     rawCheckOutput `json:"output"`
}

type rawCheckOutput struct {
	Title            string `json:"title"`
	Summary          string `json:"summary"`
	Text             string `json:"text"`
	AnnotationsCount int    `json:"annotations_count"`
}

type rawAnnotation struct {
	Path            string `json:"path"`
	StartLine       int    `json:"start_line"`
	AnnotationLevel string `json:"annotation_level"`
	Message         string `json:"message"`
}

// GetCheckRuns retrieves the check runs for a PR's head commit.
func (c *Client) GetCheckRuns(ctx context.Context, prNumber int) ([]CICheckResult, error) {
	pr, err := c.GetPR(ctx, prNumber)
	if err != nil {
		return nil, err
	}
	return c.checkRunsForSHA(ctx, pr.HeadRefOid)
}

func (c *Client) checkRunsForSHA(ctx context.Context, sha string) ([]CICheckResult, error) {
	endpoint := fmt.Sprintf("/repos/%s/commits/%s/check-runs", c.RepoPath(), sha)
	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get check runs for %s: %w", sha, err)
	}

	var response checkRunsResponse
	if err := json.Unmarshal(output, &response); err != nil {
		return nil, fmt.Errorf("failed to parse check runs: %w", err)
	}

	results := make([]CICheckResult, 0, len(response.CheckRuns))
	for i := range response.CheckRuns {
		raw := &response.CheckRuns[i]

		check := CICheckResult{
			Name:       raw.Name,
			Status:     raw.Status,
			Conclusion: raw.Conclusion,
			Output:     digestOutput(raw.Output),
		}

		// Annotations need a separate API call; fetching them is best-effort.
		if raw.Output.AnnotationsCount > 0 {
			c.attachAnnotations(ctx, raw.ID, &check)
		}

		// Keep the check URL for anything that did not succeed so the
		// feedback message can point at the failing run.
		if raw.Conclusion != CheckConclusionSuccess && raw.HTMLURL != "" {
			if check.Output == nil {
				check.Output = &CheckOutput{}
			}
			check.Output.URL = raw.HTMLURL
		}

		results = append(results, check)
	}

	return results, nil
}

// digestOutput caps a raw check output, or returns nil when the check
// produced none.
func digestOutput(out rawCheckOutput) *CheckOutput {
	if out.Title == "" && out.Summary == "" && out.Text == "" {
		return nil
	}

	text := out.Text
	if len(text) > maxOutputTextLen {
		text = text[:maxOutputTextLen]
	}

	return &CheckOutput{
		Title:   out.Title,
		Summary: out.Summary,
		Text:    text,
	}
}

// attachAnnotations fetches up to maxAnnotations annotations for a check run.
func (c *Client) attachAnnotations(ctx context.Context, checkRunID int64, check *CICheckResult) {
	endpoint := fmt.Sprintf("/repos/%s/check-runs/%d/annotations?per_page=%d", c.RepoPath(), checkRunID, maxAnnotations)
	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		c.logger.Debug("Failed to fetch annotations for check run %d: %v", checkRunID, err)
		return
	}

	var raw []rawAnnotation
	if err := json.Unmarshal(output, &raw); err != nil {
		c.logger.Debug("Failed to parse annotations for check run %d: %v", checkRunID, err)
		return
	}

	if len(raw) > maxAnnotations {
		raw = raw[:maxAnnotations]
	}

	for _, a := range raw {
		if check.Output == nil {
			check.Output = &CheckOutput{}
		}
		check.Output.Annotations = append(check.Output.Annotations, CheckAnnotation{
			Path:    a.Path,
			Line:    a.StartLine,
			Message: a.Message,
			Level:   a.AnnotationLevel,
		})
	}
}

// PRSnapshot combines a pull request with the CI state of its head commit.
//
//nolint:govet // Logical grouping preferred over memory optimization
type PRSnapshot struct {
	Number     int             `json:"number"`
	Title      string          `json:"title"`
	URL        string          `json:"url"`
	HeadBranch string          `json:"head_branch"`
	BaseBranch string          `json:"base_branch"`
	State      string          `json:"state"`
	Checks     []CICheckResult `json:"checks"`
}

// CIPassed reports whether every completed check succeeded.
// No checks at all counts as passing.
func (s PRSnapshot) CIPassed() bool {
	for i := range s.Checks {
		check := &s.Checks[i]
		if check.Status == CheckStatusCompleted && check.Conclusion != CheckConclusionSuccess {
			return false
		}
	}
	return true
}

// CICompleted reports whether no check is still queued or in progress.
func (s PRSnapshot) CICompleted() bool {
	for i := range s.Checks {
		if s.Checks[i].Status != CheckStatusCompleted {
			return false
		}
	}
	return true
}

// FailedChecks returns the completed checks whose conclusion is not success.
func (s PRSnapshot) FailedChecks() []CICheckResult {
	var failed []CICheckResult
	for i := range s.Checks {
		check := &s.Checks[i]
		if check.Status == CheckStatusCompleted && check.Conclusion != CheckConclusionSuccess {
			failed = append(failed, *check)
		}
	}
	return failed
}

// PendingChecks returns the names of checks that have not completed.
func (s PRSnapshot) PendingChecks() []string {
	var pending []string
	for i := range s.Checks {
		if s.Checks[i].Status != CheckStatusCompleted {
			pending = append(pending, s.Checks[i].Name)
		}
	}
	return pending
}

// PRSnapshot assembles the point-in-time view of a pull request that the
// review decision engine operates on.
func (c *Client) PRSnapshot(ctx context.Context, prNumber int) (*PRSnapshot, error) {
	pr, err := c.GetPR(ctx, prNumber)
	if err != nil {
		return nil, err
	}

	checks, err := c.checkRunsForSHA(ctx, pr.HeadRefOid)
	if err != nil {
		return nil, err
	}

	return &PRSnapshot{
		Number:     pr.Number,
		Title:      pr.Title,
		URL:        pr.URL,
		HeadBranch: pr.HeadRefName,
		BaseBranch: pr.BaseRefName,
		State:      pr.State,
		Checks:     checks,
	}, nil
}
