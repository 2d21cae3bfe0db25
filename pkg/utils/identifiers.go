package utils

import "strings"

// SanitizeIdentifier makes an identifier safe for metric labels and filesystem paths.
// Replaces problematic characters with dashes.
func SanitizeIdentifier(id string) string {
	sanitized := strings.ReplaceAll(id, ":", "-")

	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	sanitized = strings.ReplaceAll(sanitized, "/", "-")
	sanitized = strings.ReplaceAll(sanitized, "\\", "-")

	return sanitized
}

// SanitizeBranchName makes a proposed branch name safe for git refs.
// Invalid ref characters become dashes; slashes are kept so hierarchical
// names like issue-7/fix-login still work.
func SanitizeBranchName(name string) string {
	sanitized := strings.TrimSpace(name)
	for _, ch := range []string{" ", ":", "\\", "~", "^", "?", "*", "[", "]"} {
		sanitized = strings.ReplaceAll(sanitized, ch, "-")
	}
	for strings.Contains(sanitized, "..") {
		sanitized = strings.ReplaceAll(sanitized, "..", ".")
	}
	return strings.Trim(sanitized, "-/.")
}
