package tools

import (
	"context"
	"os"
	"path/filepath"
)

func init() {
	Register(ToolWriteFile, func(deps Deps) (Tool, error) {
		return &writeFileTool{workspace: deps.Workspace}, nil
	})
}

type writeFileTool struct {
	workspace string
}

func (t *writeFileTool) Name() string { return ToolWriteFile }

func (t *writeFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolWriteFile,
		Description: "Write content to a file, creating it and any parent directories; overwrites existing content",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"filepath": {
					Type:        "string",
					Description: "Path to the file, relative to the repository root",
				},
				"content": {
					Type:        "string",
					Description: "Full content to write",
				},
			},
			Required: []string{"filepath", "content"},
		},
	}
}

func (t *writeFileTool) PromptDocumentation() string {
	return "- write_file(filepath, content) - create or overwrite a file"
}

func (t *writeFileTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	rel, err := stringArg(args, "filepath")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}
	abs, err := resolvePath(t.workspace, rel)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return nil, err
	}
	return &ExecResult{Content: "File written: " + rel}, nil
}
