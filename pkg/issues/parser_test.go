package issues

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issueflow/pkg/github"
)

func TestParseFullIssue(t *testing.T) {
	body := `The exporter crashes when the payload is empty.

## Requirements
- Handle empty payloads without crashing
- Log a warning instead of raising

## Tasks
- Handle empty payloads without crashing
- Add a regression test

## Acceptance Criteria
- [ ] Exporter returns an empty document
- [x] Warning is logged once

See ` + "`src/exporter.py`" + ` and modify cmd/app/main.go for the fix.
Docs live at https://example.com/guide.html and we target version 1.2.3.`

	issue := &github.Issue{
		Number: 7,
		Title:  "Fix crash on empty export",
		Body:   body,
		Labels: []github.IssueLabel{{Name: "bug"}},
	}

	parsed := Parse(issue)

	assert.Equal(t, 7, parsed.Number)
	assert.Equal(t, TaskBugFix, parsed.TaskType)
	assert.Equal(t, []string{"bug"}, parsed.Labels)

	// The duplicated requirement appears once, first-seen order kept.
	assert.Equal(t, []string{
		"Handle empty payloads without crashing",
		"Log a warning instead of raising",
		"Add a regression test",
	}, parsed.Requirements)

	assert.Equal(t, []string{
		"Exporter returns an empty document",
		"Warning is logged once",
	}, parsed.AcceptanceCriteria, "checkbox markers are stripped")

	assert.Equal(t, []string{"cmd/app/main.go", "src/exporter.py"}, parsed.MentionedFiles)
}

func TestParseEmptyBody(t *testing.T) {
	parsed := Parse(&github.Issue{Number: 9, Title: "Improve the exporter"})

	assert.Equal(t, TaskRefactor, parsed.TaskType)
	assert.Empty(t, parsed.Requirements)
	assert.Empty(t, parsed.AcceptanceCriteria)
	assert.Empty(t, parsed.MentionedFiles)
}

func TestDetectTaskType(t *testing.T) {
	cases := []struct {
		title string
		want  TaskType
	}{
		{"Crash when opening settings", TaskBugFix},
		{"Implement dark mode toggle", TaskFeature},
		{"Restructure the storage layer", TaskRefactor},
		{"Update the readme badges", TaskDocumentation},
		{"Raise coverage of the parser", TaskTest},
		{"Plan Q3 roadmap", TaskUnknown},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, detectTaskType(tc.title, ""), "title: %s", tc.title)
	}
}

func TestDetectTaskTypeBugWinsTies(t *testing.T) {
	// "fix" and "add" both occur; the bug bucket is checked first.
	got := detectTaskType("Fix the importer and add logging", "")
	assert.Equal(t, TaskBugFix, got)
}

func TestExtractFileReferencesFiltering(t *testing.T) {
	body := "See `pkg/app/run.go`, fetch https://example.com/x.py, " +
		"pin 1.2.3.4, mail admin@host.py, and update config.yaml."

	files := extractFileReferences(body)

	assert.Contains(t, files, "pkg/app/run.go")
	assert.Contains(t, files, "config.yaml")
	for _, f := range files {
		assert.NotContains(t, f, "example.com")
		assert.NotEqual(t, "1.2.3.4", f)
		assert.NotEqual(t, "admin@host.py", f)
	}
}

func TestFullDescriptionLayout(t *testing.T) {
	parsed := &ParsedIssue{
		Number:             7,
		Title:              "Fix crash on empty export",
		Body:               "It crashes.",
		Requirements:       []string{"Handle empty payloads"},
		AcceptanceCriteria: []string{"No crash on empty input"},
		MentionedFiles:     []string{"src/exporter.py"},
	}

	want := `# Issue #7: Fix crash on empty export

## Description
It crashes.

## Requirements
- Handle empty payloads

## Acceptance Criteria
- No crash on empty input

## Referenced Files
- ` + "`src/exporter.py`" + `
`

	require.Equal(t, want, parsed.FullDescription())
}

func TestFullDescriptionOmitsEmptySections(t *testing.T) {
	parsed := &ParsedIssue{Number: 2, Title: "Small fix", Body: "Just do it."}

	desc := parsed.FullDescription()
	assert.NotContains(t, desc, "## Requirements")
	assert.NotContains(t, desc, "## Acceptance Criteria")
	assert.NotContains(t, desc, "## Referenced Files")
}
