package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issueflow/pkg/agent/llm"
	"issueflow/pkg/agent/llmerrors"
)

// scriptedClient returns canned responses in order and records every
// request it sees.
type scriptedClient struct {
	responses []llm.CompletionResponse
	errs      []error
	requests  []llm.CompletionRequest
}

func (s *scriptedClient) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	s.requests = append(s.requests, req)
	i := len(s.requests) - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.responses[i], err
}

func (s *scriptedClient) Stream(_ context.Context, _ llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (s *scriptedClient) GetModelName() string { return "test-model" }

func wrap(base *scriptedClient) llm.LLMClient {
	return Middleware()(base)
}

func TestToolCallResponsePassesThrough(t *testing.T) {
	base := &scriptedClient{responses: []llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "read_file"}}},
	}}

	resp, err := wrap(base).Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.ToolCalls, 1)
	assert.Len(t, base.requests, 1)
}

func TestTextOnlyResponsePassesThrough(t *testing.T) {
	// A reply without tool calls is a deliberate stop, not an empty
	// response.
	base := &scriptedClient{responses: []llm.CompletionResponse{
		{Content: "I cannot reproduce the bug; here is what I found."},
	}}

	resp, err := wrap(base).Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Content)
	assert.Len(t, base.requests, 1)
}

func TestEmptyResponseRetriesWithGuidance(t *testing.T) {
	base := &scriptedClient{responses: []llm.CompletionResponse{
		{},
		{Content: "Recovered."},
	}}

	resp, err := wrap(base).Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.CompletionMessage{llm.NewUserMessage("fix the bug")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Recovered.", resp.Content)

	require.Len(t, base.requests, 2)
	retry := base.requests[1].Messages
	require.Len(t, retry, 2)
	assert.Equal(t, llm.RoleUser, retry[1].Role)
	assert.Contains(t, retry[1].Content, "empty")
}

func TestEmptyResponseErrorAlsoRetries(t *testing.T) {
	base := &scriptedClient{
		responses: []llm.CompletionResponse{{}, {Content: "Recovered."}},
		errs:      []error{llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "no content")},
	}

	resp, err := wrap(base).Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Recovered.", resp.Content)
	assert.Len(t, base.requests, 2)
}

func TestPersistentEmptySurfacesError(t *testing.T) {
	base := &scriptedClient{responses: []llm.CompletionResponse{{}, {Content: "   "}}}

	_, err := wrap(base).Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse))
	assert.Len(t, base.requests, 2)
}

func TestOtherErrorsPassThroughImmediately(t *testing.T) {
	base := &scriptedClient{
		responses: []llm.CompletionResponse{{}},
		errs:      []error{llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "throttled")},
	}

	_, err := wrap(base).Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeRateLimit))
	assert.Len(t, base.requests, 1)
}
