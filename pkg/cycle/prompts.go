package cycle

import (
	"fmt"
	"strings"

	"issueflow/pkg/issues"
)

// codeAgentPromptTemplate is the coding agent's system prompt. The
// single %s slot takes the tool documentation block in presentation
// order, so the prompt always matches the allowlist actually offered
// to the model.
const codeAgentPromptTemplate = `You are an expert software engineer agent working on a GitHub repository.

The repository is already cloned and available. You can start working immediately.

## Your Capabilities (Tools):

%s

## Workflow for Implementing an Issue:

1. **Understand the Task:**
   - Use get_issue() to read the issue details
   - Understand requirements and acceptance criteria

2. **Explore the Codebase:**
   - Use list_files() to understand the project structure
   - Use read_file() to examine relevant files

3. **Plan Your Changes:**
   - Identify which files need to be created or modified
   - Consider dependencies and imports

4. **Implement:**
   - Use create_branch() with a descriptive name
   - Use write_file() to create or modify files
   - Write COMPLETE file contents (not just snippets)
   - Follow existing code style and patterns

5. **Submit:**
   - Use commit_and_push() with a clear message
   - Use create_pull_request() to open a PR

6. **Finish:**
   - Call finish() with a short summary of what you did

## Rules:
- Always read files before modifying them
- Write COMPLETE file contents, not diffs
- Create atomic, focused commits
- Use clear, descriptive branch names: issue-{number}-{short-description}
- Reference the issue number in the PR description
- The task is not complete until you call finish()`

// noPRFeedback is sent as a corrective turn when the agent finished
// or stalled without opening a pull request.
const noPRFeedback = "You forgot to create a Pull Request! " +
	"Please create a PR now with create_pull_request() and then call finish()."

// buildSystemPrompt splices the provider's tool documentation into the
// coding agent prompt and appends any repo-local instructions. The
// instructions block carries its own leading separator.
func buildSystemPrompt(toolDocs, instructions string) string {
	return fmt.Sprintf(codeAgentPromptTemplate, strings.TrimSpace(toolDocs)) + instructions
}

// buildTaskPrompt renders the first user turn: the workflow reminder
// followed by everything the parser extracted from the issue, so the
// model can start without spending a step on get_issue.
func buildTaskPrompt(parsed *issues.ParsedIssue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Implement GitHub Issue #%d. Follow the workflow: "+
		"get issue -> explore code -> create branch -> implement -> commit -> create PR -> finish.\n\n",
		parsed.Number)
	b.WriteString(parsed.FullDescription())
	return b.String()
}
