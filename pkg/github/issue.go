package github

import (
	"context"
	"fmt"
)

// Issue represents a GitHub issue.
// Field names match gh CLI --json output.
type Issue struct {
	Number int          `json:"number"`
	Title  string       `json:"title"`
	Body   string       `json:"body"`
	State  string       `json:"state"` // OPEN, CLOSED
	URL    string       `json:"url"`
	Labels []IssueLabel `json:"labels"`
}

// IssueLabel is a label attached to an issue.
type IssueLabel struct {
	Name string `json:"name"`
}

// LabelNames returns the names of the issue's labels.
func (i *Issue) LabelNames() []string {
	names := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		names = append(names, l.Name)
	}
	return names
}

// GetIssue retrieves an issue by number.
func (c *Client) GetIssue(ctx context.Context, number int) (*Issue, error) {
	args := []string{
		"issue", "view", fmt.Sprintf("%d", number),
		"--repo", c.RepoPath(),
		"--json", "number,title,body,state,url,labels",
	}

	var issue Issue
	if err := c.runJSON(ctx, &issue, args...); err != nil {
		return nil, fmt.Errorf("failed to get issue #%d: %w", number, err)
	}

	return &issue, nil
}
