package tools

import (
	"context"
	"fmt"
	"strings"

	"issueflow/pkg/github"
)

func init() {
	Register(ToolGetIssue, func(deps Deps) (Tool, error) {
		if deps.GitHub == nil {
			return nil, fmt.Errorf("get_issue requires a GitHub client")
		}
		return &getIssueTool{gh: deps.GitHub}, nil
	})
}

// getIssueTool fetches an issue and renders it as a markdown digest the
// model can quote from.
type getIssueTool struct {
	gh github.GitHubClient
}

func (t *getIssueTool) Name() string { return ToolGetIssue }

func (t *getIssueTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolGetIssue,
		Description: "Get the title, state, labels, and description of a GitHub issue",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"issue_number": {
					Type:        "integer",
					Description: "Issue number to fetch",
				},
			},
			Required: []string{"issue_number"},
		},
	}
}

func (t *getIssueTool) PromptDocumentation() string {
	return "- get_issue(issue_number) - fetch the issue you are working on"
}

func (t *getIssueTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	number, err := intArg(args, "issue_number")
	if err != nil {
		return nil, err
	}
	issue, err := t.gh.GetIssue(ctx, number)
	if err != nil {
		return nil, err
	}
	return &ExecResult{Content: FormatIssue(issue)}, nil
}

// FormatIssue renders an issue the way agent prompts embed it, so the
// tool observation and the prompt read the same.
func FormatIssue(issue *github.Issue) string {
	labels := "None"
	if names := issue.LabelNames(); len(names) > 0 {
		labels = strings.Join(names, ", ")
	}
	body := issue.Body
	if strings.TrimSpace(body) == "" {
		body = "No description"
	}
	return fmt.Sprintf("## Issue #%d: %s\n**State:** %s\n**Labels:** %s\n\n### Description:\n%s",
		issue.Number, issue.Title, issue.State, labels, body)
}
