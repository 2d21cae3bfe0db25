package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// IssueflowDir is the repo-local directory for issueflow files.
	IssueflowDir = ".issueflow"

	// CommonInstructionsFile is the filename for instructions shared by all agents.
	CommonInstructionsFile = "COMMON.md"
	// CoderInstructionsFile is the filename for code-agent instructions.
	CoderInstructionsFile = "CODER.md"
	// ReviewerInstructionsFile is the filename for reviewer instructions.
	ReviewerInstructionsFile = "REVIEWER.md"

	// UserInstructionsTokenLimit caps each instruction file (2000 tokens ~ 8000 chars).
	UserInstructionsTokenLimit = 2000
	// UserInstructionsCharLimit is the character-level backstop for the same cap.
	UserInstructionsCharLimit = 8000
)

// UserInstructions holds the content of repo-local instruction files.
// Instruction files let a repository tune agent behavior without code
// changes: coding standards in CODER.md, review criteria in REVIEWER.md.
type UserInstructions struct {
	Common   string
	Coder    string
	Reviewer string
}

// LoadUserInstructions loads instruction files from the repo's .issueflow directory.
// Missing files yield empty strings; unreadable or oversized files are errors.
func LoadUserInstructions(repoDir string) (*UserInstructions, error) {
	dir := filepath.Join(repoDir, IssueflowDir)

	instructions := &UserInstructions{}

	files := map[string]*string{
		CommonInstructionsFile:   &instructions.Common,
		CoderInstructionsFile:    &instructions.Coder,
		ReviewerInstructionsFile: &instructions.Reviewer,
	}

	for filename, target := range files {
		filePath := filepath.Join(dir, filename)

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			*target = ""
			continue
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w (please check file permissions)", filename, err)
		}

		contentStr := string(content)

		if len(contentStr) > UserInstructionsCharLimit {
			return nil, fmt.Errorf("%s exceeds character limit of %d (current: %d)",
				filename, UserInstructionsCharLimit, len(contentStr))
		}

		tokenCount := CountTokensSimple(contentStr)
		if tokenCount > UserInstructionsTokenLimit {
			return nil, fmt.Errorf("%s exceeds token limit of %d (current: %d)",
				filename, UserInstructionsTokenLimit, tokenCount)
		}

		*target = contentStr
	}

	return instructions, nil
}

// FormatUserInstructions formats instructions for inclusion in a system prompt.
// Returns empty string when there is nothing to add.
func FormatUserInstructions(instructions *UserInstructions, agentType string) string {
	if instructions == nil {
		return ""
	}

	var parts []string

	if instructions.Common != "" {
		parts = append(parts, "---\n## Common Instructions\n"+instructions.Common)
	}

	switch agentType {
	case "CODER":
		if instructions.Coder != "" {
			parts = append(parts, "---\n## Agent-Specific Instructions\n"+instructions.Coder)
		}
	case "REVIEWER":
		if instructions.Reviewer != "" {
			parts = append(parts, "---\n## Agent-Specific Instructions\n"+instructions.Reviewer)
		}
	}

	if len(parts) == 0 {
		return ""
	}

	return "\n" + strings.Join(parts, "\n")
}
