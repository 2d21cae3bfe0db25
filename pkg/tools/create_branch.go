package tools

import (
	"context"
	"fmt"

	"issueflow/pkg/utils"
)

func init() {
	Register(ToolCreateBranch, func(deps Deps) (Tool, error) {
		if deps.Git == nil {
			return nil, fmt.Errorf("create_branch requires a git runner")
		}
		return &createBranchTool{deps: deps}, nil
	})
}

type createBranchTool struct {
	deps Deps
}

func (t *createBranchTool) Name() string { return ToolCreateBranch }

func (t *createBranchTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolCreateBranch,
		Description: "Create a new git branch and switch to it",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"branch_name": {
					Type:        "string",
					Description: "Name for the new branch",
				},
			},
			Required: []string{"branch_name"},
		},
	}
}

func (t *createBranchTool) PromptDocumentation() string {
	return "- create_branch(branch_name) - create and switch to a work branch; do this before writing files"
}

func (t *createBranchTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	name, err := stringArg(args, "branch_name")
	if err != nil {
		return nil, err
	}
	// Model-suggested names can contain spaces or other characters git
	// rejects; sanitize rather than bounce the call back.
	name = utils.SanitizeBranchName(name)
	if name == "" {
		return nil, fmt.Errorf("branch name is empty after sanitizing")
	}
	if err := t.deps.Git.CreateBranch(ctx, name); err != nil {
		return nil, err
	}
	return &ExecResult{
		Artifact: &Artifact{Kind: ArtifactBranchCreated, Branch: name},
		Content:  "Branch created: " + name,
	}, nil
}
