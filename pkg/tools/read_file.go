package tools

import (
	"context"
	"os"
)

// maxReadBytes caps how much of a file a single read returns. Large
// files get their head with a truncation marker rather than an error.
const maxReadBytes = 100 * 1024

func init() {
	Register(ToolReadFile, func(deps Deps) (Tool, error) {
		return &readFileTool{workspace: deps.Workspace}, nil
	})
}

type readFileTool struct {
	workspace string
}

func (t *readFileTool) Name() string { return ToolReadFile }

func (t *readFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolReadFile,
		Description: "Read a file from the repository",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"filepath": {
					Type:        "string",
					Description: "Path to the file, relative to the repository root",
				},
			},
			Required: []string{"filepath"},
		},
	}
}

func (t *readFileTool) PromptDocumentation() string {
	return "- read_file(filepath) - read a file's contents"
}

func (t *readFileTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	rel, err := stringArg(args, "filepath")
	if err != nil {
		return nil, err
	}
	abs, err := resolvePath(t.workspace, rel)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(abs)
	if os.IsNotExist(err) {
		return &ExecResult{Content: "File not found: " + rel}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) > maxReadBytes {
		return &ExecResult{Content: string(data[:maxReadBytes]) + "\n... (file truncated)"}, nil
	}
	return &ExecResult{Content: string(data)}, nil
}
