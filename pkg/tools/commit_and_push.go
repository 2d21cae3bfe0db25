package tools

import (
	"context"
	"fmt"
)

func init() {
	Register(ToolCommitAndPush, func(deps Deps) (Tool, error) {
		if deps.Git == nil {
			return nil, fmt.Errorf("commit_and_push requires a git runner")
		}
		return &commitAndPushTool{deps: deps}, nil
	})
}

type commitAndPushTool struct {
	deps Deps
}

func (t *commitAndPushTool) Name() string { return ToolCommitAndPush }

func (t *commitAndPushTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolCommitAndPush,
		Description: "Stage all changes, commit them, and push the current branch to the remote",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"message": {
					Type:        "string",
					Description: "Commit message",
				},
			},
			Required: []string{"message"},
		},
	}
}

func (t *commitAndPushTool) PromptDocumentation() string {
	return "- commit_and_push(message) - stage everything, commit, and push the current branch"
}

func (t *commitAndPushTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	message, err := stringArg(args, "message")
	if err != nil {
		return nil, err
	}
	branch, err := t.deps.Git.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}
	// Refuse to push straight to the base branch; the repo's truth
	// about the checked-out branch is authoritative, not anything the
	// model claims to have done earlier.
	if branch == t.deps.BaseBranch || branch == "HEAD" {
		return nil, fmt.Errorf("create a branch first with create_branch()")
	}

	if err := t.deps.Git.AddAll(ctx); err != nil {
		return nil, err
	}
	changed, err := t.deps.Git.HasChanges(ctx)
	if err != nil {
		return nil, err
	}
	if !changed {
		return &ExecResult{Content: "No changes to commit"}, nil
	}
	if err := t.deps.Git.Commit(ctx, message); err != nil {
		return nil, err
	}
	if err := t.deps.Git.Push(ctx, branch); err != nil {
		return nil, err
	}
	return &ExecResult{Content: "Pushed to " + branch}, nil
}
