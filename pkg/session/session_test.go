package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issueflow/pkg/agent/llm"
)

// charCounter treats every byte as a token, which keeps the compaction
// thresholds easy to reason about in tests.
type charCounter struct{}

func (charCounter) CountTokens(s string) int { return len(s) }

func TestTranscriptOrdering(t *testing.T) {
	sess := New("coder", "You are a coding agent.")
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, "coder", sess.Agent)

	sess.AddUserMessage("Fix issue #7")
	sess.AddAssistantMessage("Looking at the issue.", []llm.ToolCall{
		{ID: "call_1", Name: "get_issue", Parameters: map[string]any{"issue_number": float64(7)}},
	})
	sess.AddToolResult("call_1", "## Issue #7: Handle empty payloads", false)

	msgs := sess.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "get_issue", msgs[1].ToolCalls[0].Name)
	assert.Equal(t, llm.RoleUser, msgs[2].Role)
	require.Len(t, msgs[2].ToolResults, 1)
	assert.Equal(t, "call_1", msgs[2].ToolResults[0].ToolCallID)
}

func TestToolResultsMergeIntoOneMessage(t *testing.T) {
	sess := New("coder", "")
	sess.AddAssistantMessage("", []llm.ToolCall{
		{ID: "a", Name: "read_file"},
		{ID: "b", Name: "write_file"},
	})
	sess.AddToolResult("a", "contents", false)
	sess.AddToolResult("b", "File written: main.go", false)

	msgs := sess.Messages()
	require.Len(t, msgs, 2)
	require.Len(t, msgs[1].ToolResults, 2)
	assert.Equal(t, "a", msgs[1].ToolResults[0].ToolCallID)
	assert.Equal(t, "b", msgs[1].ToolResults[1].ToolCallID)

	// A plain user message ends the batch; the next result starts a new one.
	sess.AddUserMessage("keep going")
	sess.AddToolResult("c", "late result", true)
	msgs = sess.Messages()
	require.Len(t, msgs, 4)
	require.Len(t, msgs[3].ToolResults, 1)
	assert.True(t, msgs[3].ToolResults[0].IsError)
}

func TestMessagesReturnsCopy(t *testing.T) {
	sess := New("coder", "")
	sess.AddUserMessage("original")

	msgs := sess.Messages()
	msgs[0].Content = "mutated"

	assert.Equal(t, "original", sess.Messages()[0].Content)
}

func TestSerializeRoundTrip(t *testing.T) {
	sess := New("coder", "system prompt")
	sess.AddUserMessage("Fix issue #7")
	sess.AddAssistantMessage("On it.", []llm.ToolCall{
		{ID: "call_1", Name: "create_branch", Parameters: map[string]any{"branch_name": "issue-7-fix"}},
	})
	sess.AddToolResult("call_1", "Branch created: issue-7-fix", false)
	sess.Branch = "issue-7-fix"
	sess.PRNumber = 3
	sess.PRURL = "https://github.com/o/r/pull/3"
	sess.Finished = true
	sess.CompletionMessage = "done"

	data, err := sess.Serialize()
	require.NoError(t, err)

	restored := &Session{}
	require.NoError(t, restored.Deserialize(data))

	assert.Equal(t, sess.ID, restored.ID)
	assert.Equal(t, "coder", restored.Agent)
	assert.Equal(t, "system prompt", restored.SystemPrompt)
	assert.Equal(t, "issue-7-fix", restored.Branch)
	assert.Equal(t, 3, restored.PRNumber)
	assert.True(t, restored.Finished)
	assert.Equal(t, "done", restored.CompletionMessage)

	msgs := restored.Messages()
	require.Len(t, msgs, 3)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "create_branch", msgs[1].ToolCalls[0].Name)
	assert.Equal(t, "issue-7-fix", msgs[1].ToolCalls[0].Parameters["branch_name"])
	require.Len(t, msgs[2].ToolResults, 1)
	assert.Equal(t, "Branch created: issue-7-fix", msgs[2].ToolResults[0].Content)
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	sess := &Session{}
	assert.Error(t, sess.Deserialize([]byte("{not json")))
}

func TestCompactIfOverTruncatesOldMessages(t *testing.T) {
	sess := New("coder", "sys")
	long := strings.Repeat("x", 2000)
	for i := 0; i < 10; i++ {
		sess.AddUserMessage(long)
	}

	// Under the limit nothing changes.
	assert.False(t, sess.CompactIfOver(charCounter{}, 1_000_000))
	assert.Equal(t, long, sess.Messages()[0].Content)

	require.True(t, sess.CompactIfOver(charCounter{}, 100))

	msgs := sess.Messages()
	assert.True(t, strings.HasSuffix(msgs[0].Content, "... (truncated)"))
	assert.Less(t, len(msgs[0].Content), 500)
	// The trailing window is left intact for the model to work with.
	assert.Equal(t, long, msgs[len(msgs)-1].Content)
}

func TestCompactPreservesToolPairing(t *testing.T) {
	sess := New("coder", "")
	for i := 0; i < 8; i++ {
		sess.AddAssistantMessage("", []llm.ToolCall{{ID: "c", Name: "read_file"}})
		sess.AddToolResult("c", strings.Repeat("y", 1000), false)
	}

	require.True(t, sess.CompactIfOver(charCounter{}, 100))

	for _, msg := range sess.Messages() {
		if msg.Role == llm.RoleAssistant {
			assert.Len(t, msg.ToolCalls, 1)
		} else {
			assert.Len(t, msg.ToolResults, 1)
		}
	}
}
