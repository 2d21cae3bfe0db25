package tools

import (
	"context"
	"fmt"

	"issueflow/pkg/github"
)

func init() {
	Register(ToolCreatePullRequest, func(deps Deps) (Tool, error) {
		if deps.Git == nil || deps.GitHub == nil {
			return nil, fmt.Errorf("create_pull_request requires a git runner and a GitHub client")
		}
		return &createPullRequestTool{deps: deps}, nil
	})
}

type createPullRequestTool struct {
	deps Deps
}

func (t *createPullRequestTool) Name() string { return ToolCreatePullRequest }

func (t *createPullRequestTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolCreatePullRequest,
		Description: "Open a pull request from the current branch into the base branch",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"title": {
					Type:        "string",
					Description: "Pull request title",
				},
				"body": {
					Type:        "string",
					Description: "Pull request description",
				},
			},
			Required: []string{"title"},
		},
	}
}

func (t *createPullRequestTool) PromptDocumentation() string {
	return "- create_pull_request(title, body) - open a PR for the pushed branch"
}

func (t *createPullRequestTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	title, err := stringArg(args, "title")
	if err != nil {
		return nil, err
	}
	body, err := stringArgOr(args, "body", "")
	if err != nil {
		return nil, err
	}
	branch, err := t.deps.Git.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}
	if branch == t.deps.BaseBranch || branch == "HEAD" {
		return nil, fmt.Errorf("you must create_branch() and commit_and_push() first")
	}

	// A retried call should hand back the PR that already exists for
	// the branch instead of failing on a duplicate.
	existing, err := t.deps.GitHub.ListPRsForBranch(ctx, branch)
	if err != nil {
		return nil, err
	}
	for _, pr := range existing {
		if !pr.Closed {
			return &ExecResult{
				Artifact: &Artifact{Kind: ArtifactPRCreated, PRNumber: pr.Number, PRURL: pr.URL},
				Content:  "PR already exists: " + pr.URL,
			}, nil
		}
	}

	pr, err := t.deps.GitHub.CreatePR(ctx, github.PRCreateOptions{
		Title:       title,
		Body:        body,
		Head:        branch,
		Base:        t.deps.BaseBranch,
		IssueNumber: t.deps.IssueNumber,
	})
	if err != nil {
		return nil, err
	}
	return &ExecResult{
		Artifact: &Artifact{Kind: ArtifactPRCreated, PRNumber: pr.Number, PRURL: pr.URL},
		Content:  "PR created: " + pr.URL,
	}, nil
}
