package tools

import (
	"context"
	"os"
	"strings"
)

// maxListEntries bounds a single listing so one tool call cannot flood
// the transcript with a huge directory.
const maxListEntries = 50

func init() {
	Register(ToolListFiles, func(deps Deps) (Tool, error) {
		return &listFilesTool{workspace: deps.Workspace}, nil
	})
}

type listFilesTool struct {
	workspace string
}

func (t *listFilesTool) Name() string { return ToolListFiles }

func (t *listFilesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolListFiles,
		Description: "List files in a directory of the repository",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"directory": {
					Type:        "string",
					Description: "Directory path relative to the repository root (default: the root)",
				},
			},
		},
	}
}

func (t *listFilesTool) PromptDocumentation() string {
	return "- list_files(directory) - list a directory; directories end with /"
}

func (t *listFilesTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	dir, err := stringArgOr(args, "directory", ".")
	if err != nil {
		return nil, err
	}
	abs, err := resolvePath(t.workspace, dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(abs)
	if os.IsNotExist(err) {
		return &ExecResult{Content: "Directory not found: " + dir}, nil
	}
	if err != nil {
		return nil, err
	}

	// ReadDir returns entries sorted by name; dotfiles are noise for
	// the model and are skipped.
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return &ExecResult{Content: "Empty directory"}, nil
	}

	truncated := len(names) > maxListEntries
	if truncated {
		names = names[:maxListEntries]
	}
	out := strings.Join(names, "\n")
	if truncated {
		out += "\n... (listing truncated)"
	}
	return &ExecResult{Content: out}, nil
}
