package tools

import (
	"context"
)

func init() {
	Register(ToolFinish, func(deps Deps) (Tool, error) {
		return &finishTool{}, nil
	})
}

// finishTool ends the agent's turn. The loop reacts to the artifact,
// not the observation text, so a model that calls finish alongside
// other tools still terminates cleanly.
type finishTool struct{}

func (t *finishTool) Name() string { return ToolFinish }

func (t *finishTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolFinish,
		Description: "Signal that the task is complete",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"summary": {
					Type:        "string",
					Description: "Brief summary of what was done",
				},
			},
			Required: []string{"summary"},
		},
	}
}

func (t *finishTool) PromptDocumentation() string {
	return "- finish(summary) - call this once the task is done"
}

func (t *finishTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	summary, err := stringArg(args, "summary")
	if err != nil {
		return nil, err
	}
	return &ExecResult{
		Artifact: &Artifact{Kind: ArtifactFinished, Summary: summary},
		Content:  "Task completed: " + summary,
	}, nil
}
