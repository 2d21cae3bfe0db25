// Package issues extracts structured data from GitHub issue markdown:
// requirement lists, acceptance criteria, and file references. The
// task prompt builder folds the result into the agent's first turn.
package issues

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"issueflow/pkg/github"
)

// TaskType classifies what kind of work an issue asks for.
type TaskType string

const (
	TaskFeature       TaskType = "feature"
	TaskBugFix        TaskType = "bug_fix"
	TaskRefactor      TaskType = "refactor"
	TaskDocumentation TaskType = "documentation"
	TaskTest          TaskType = "test"
	TaskUnknown       TaskType = "unknown"
)

// ParsedIssue is an issue plus everything the parser extracted from it.
type ParsedIssue struct {
	Number             int
	Title              string
	Body               string
	TaskType           TaskType
	Requirements       []string
	AcceptanceCriteria []string
	MentionedFiles     []string
	Labels             []string
}

// FullDescription renders the issue for LLM context: description first,
// then the extracted requirements, criteria, and file references.
func (p *ParsedIssue) FullDescription() string {
	parts := []string{
		fmt.Sprintf("# Issue #%d: %s", p.Number, p.Title),
		"",
		"## Description",
		p.Body,
		"",
	}

	if len(p.Requirements) > 0 {
		parts = append(parts, "## Requirements")
		for _, req := range p.Requirements {
			parts = append(parts, "- "+req)
		}
		parts = append(parts, "")
	}

	if len(p.AcceptanceCriteria) > 0 {
		parts = append(parts, "## Acceptance Criteria")
		for _, ac := range p.AcceptanceCriteria {
			parts = append(parts, "- "+ac)
		}
		parts = append(parts, "")
	}

	if len(p.MentionedFiles) > 0 {
		parts = append(parts, "## Referenced Files")
		for _, f := range p.MentionedFiles {
			parts = append(parts, "- `"+f+"`")
		}
		parts = append(parts, "")
	}

	return strings.Join(parts, "\n")
}

var (
	backtickFileRe = regexp.MustCompile("`([a-zA-Z0-9_\\-./]+\\.[a-zA-Z0-9]+)`")
	verbFileRe     = regexp.MustCompile("(?i)(?:file|in|at|see|modify|edit|update|create)\\s+[`'\"]?([a-zA-Z0-9_\\-./]+\\.[a-zA-Z0-9]+)[`'\"]?")

	requirementsSectionRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:##?\s*)?(?:requirements?|needs?|must have|should have)[:\s]*\n((?:[-*]\s*.+\n?)+)`),
		regexp.MustCompile(`(?i)(?:##?\s*)?(?:tasks?|todo)[:\s]*\n((?:[-*]\s*.+\n?)+)`),
	}
	acceptanceSectionRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:##?\s*)?(?:acceptance criteria|done when|complete when)[:\s]*\n((?:[-*]\s*.+\n?)+)`),
		regexp.MustCompile(`(?i)(?:##?\s*)?(?:expected behavior|expected result)[:\s]*\n((?:[-*]\s*.+\n?)+)`),
	}

	listMarkerRe = regexp.MustCompile(`^[-*]\s+`)
	numberedRe   = regexp.MustCompile(`^\d+\.\s+`)
	checkboxRe   = regexp.MustCompile(`^\[[ xX]\]\s*`)

	invalidFileRes = []*regexp.Regexp{
		regexp.MustCompile(`^https?://`),
		regexp.MustCompile(`^\d+\.\d+\.\d+`),
		regexp.MustCompile(`^[a-zA-Z]+@`),
	}
)

// taskTypeKeywords is ordered: the first bucket with a match wins, so
// bug wording beats feature wording when both appear.
var taskTypeKeywords = []struct {
	taskType TaskType
	keywords []string
}{
	{TaskBugFix, []string{"bug", "fix", "error", "issue", "broken", "crash", "fail"}},
	{TaskFeature, []string{"add", "implement", "create", "new", "feature", "support"}},
	{TaskRefactor, []string{"refactor", "improve", "optimize", "clean", "restructure"}},
	{TaskDocumentation, []string{"doc", "readme", "comment", "documentation"}},
	{TaskTest, []string{"test", "spec", "coverage", "unittest"}},
}

var validExtensions = map[string]bool{
	".go": true, ".mod": true, ".py": true, ".js": true, ".ts": true,
	".jsx": true, ".tsx": true, ".json": true, ".yaml": true, ".yml": true,
	".md": true, ".txt": true, ".html": true, ".css": true, ".scss": true,
	".sql": true, ".sh": true, ".toml": true, ".ini": true, ".cfg": true,
	".env": true,
}

// Parse extracts structured data from a GitHub issue.
func Parse(issue *github.Issue) *ParsedIssue {
	body := issue.Body

	return &ParsedIssue{
		Number:             issue.Number,
		Title:              issue.Title,
		Body:               body,
		TaskType:           detectTaskType(issue.Title, body),
		Requirements:       extractSections(body, requirementsSectionRes),
		AcceptanceCriteria: extractSections(body, acceptanceSectionRes),
		MentionedFiles:     extractFileReferences(body),
		Labels:             issue.LabelNames(),
	}
}

func detectTaskType(title, body string) TaskType {
	combined := strings.ToLower(title + " " + body)
	for _, bucket := range taskTypeKeywords {
		for _, keyword := range bucket.keywords {
			if strings.Contains(combined, keyword) {
				return bucket.taskType
			}
		}
	}
	return TaskUnknown
}

// extractSections collects list items under every section header any of
// the patterns matches, deduplicated in first-seen order.
func extractSections(body string, patterns []*regexp.Regexp) []string {
	var items []string
	for _, re := range patterns {
		for _, match := range re.FindAllStringSubmatch(body, -1) {
			items = append(items, parseListItems(match[1])...)
		}
	}

	seen := make(map[string]bool, len(items))
	var unique []string
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			unique = append(unique, item)
		}
	}
	return unique
}

// parseListItems strips markdown list markers and task checkboxes from
// each line.
func parseListItems(text string) []string {
	var items []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		line = listMarkerRe.ReplaceAllString(line, "")
		line = numberedRe.ReplaceAllString(line, "")
		line = checkboxRe.ReplaceAllString(line, "")
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}

func extractFileReferences(body string) []string {
	set := make(map[string]bool)
	for _, re := range []*regexp.Regexp{backtickFileRe, verbFileRe} {
		for _, match := range re.FindAllStringSubmatch(body, -1) {
			if validFileReference(match[1]) {
				set[match[1]] = true
			}
		}
	}

	files := make([]string, 0, len(set))
	for f := range set {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

func validFileReference(ref string) bool {
	for _, re := range invalidFileRes {
		if re.MatchString(ref) {
			return false
		}
	}

	if idx := strings.LastIndex(ref, "."); idx >= 0 {
		if validExtensions[strings.ToLower(ref[idx:])] {
			return true
		}
	}
	return strings.Contains(ref, "/")
}
