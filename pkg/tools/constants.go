package tools

// Canonical tool names. Used for registration, allowlists, and metrics
// labels; never compare against string literals elsewhere.
const (
	ToolGetIssue          = "get_issue"
	ToolListFiles         = "list_files"
	ToolReadFile          = "read_file"
	ToolWriteFile         = "write_file"
	ToolCreateBranch      = "create_branch"
	ToolCommitAndPush     = "commit_and_push"
	ToolCreatePullRequest = "create_pull_request"
	ToolFinish            = "finish"
)

// CoderTools returns the allowlist for the coding agent, in the order
// the definitions are presented to the model.
func CoderTools() []string {
	return []string{
		ToolGetIssue,
		ToolListFiles,
		ToolReadFile,
		ToolWriteFile,
		ToolCreateBranch,
		ToolCommitAndPush,
		ToolCreatePullRequest,
		ToolFinish,
	}
}
