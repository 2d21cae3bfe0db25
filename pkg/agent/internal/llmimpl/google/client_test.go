package google

import (
	"strings"
	"testing"

	"google.golang.org/genai"

	"issueflow/pkg/agent/llm"
	"issueflow/pkg/tools"
)

func TestGetModelName(t *testing.T) {
	client := NewClient("test-key", "gemini-2.5-flash")
	if got := client.GetModelName(); got != "gemini-2.5-flash" {
		t.Errorf("Expected model name to round-trip, got %q", got)
	}
}

func TestConvertMessages(t *testing.T) {
	t.Run("empty list errors", func(t *testing.T) {
		_, _, err := convertMessages(nil, nil)
		if err == nil || !strings.Contains(err.Error(), "message list cannot be empty") {
			t.Errorf("Expected empty-list error, got %v", err)
		}
	})

	t.Run("system messages become the instruction", func(t *testing.T) {
		contents, system, err := convertMessages([]llm.CompletionMessage{
			{Role: llm.RoleSystem, Content: "You are helpful"},
			{Role: llm.RoleSystem, Content: "And concise"},
			{Role: llm.RoleUser, Content: "Hello"},
		}, nil)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if system != "You are helpful\n\nAnd concise" {
			t.Errorf("Expected concatenated instruction, got %q", system)
		}
		if len(contents) != 1 || contents[0].Role != "user" {
			t.Fatalf("Expected one user content, got %+v", contents)
		}
	})

	t.Run("assistant maps to model role", func(t *testing.T) {
		contents, _, err := convertMessages([]llm.CompletionMessage{
			{Role: llm.RoleUser, Content: "Hi"},
			{Role: llm.RoleAssistant, Content: "Hello"},
		}, nil)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(contents) != 2 {
			t.Fatalf("Expected 2 contents, got %d", len(contents))
		}
		if contents[0].Role != "user" || contents[1].Role != "model" {
			t.Errorf("Expected user/model roles, got %s/%s", contents[0].Role, contents[1].Role)
		}
	})

	t.Run("unsupported role errors", func(t *testing.T) {
		_, _, err := convertMessages([]llm.CompletionMessage{
			{Role: "tool", Content: "observation"},
		}, nil)
		if err == nil || !strings.Contains(err.Error(), "unsupported message role") {
			t.Errorf("Expected unsupported-role error, got %v", err)
		}
	})

	t.Run("tool calls become function call parts", func(t *testing.T) {
		contents, _, err := convertMessages([]llm.CompletionMessage{
			{Role: llm.RoleUser, Content: "Fix it"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
				{ID: "read_file", Name: "read_file", Parameters: map[string]any{"filepath": "main.go"}},
			}},
		}, nil)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		last := contents[len(contents)-1]
		if len(last.Parts) != 1 || last.Parts[0].FunctionCall == nil {
			t.Fatalf("Expected a function call part, got %+v", last.Parts)
		}
		if last.Parts[0].FunctionCall.Name != "read_file" {
			t.Errorf("Expected call name read_file, got %q", last.Parts[0].FunctionCall.Name)
		}
	})

	t.Run("tool results match by name", func(t *testing.T) {
		contents, _, err := convertMessages([]llm.CompletionMessage{
			{Role: llm.RoleUser, Content: "Fix it"},
			{Role: llm.RoleAssistant, Content: "Reading."},
			{Role: llm.RoleUser, ToolResults: []llm.ToolResult{
				{ToolCallID: "read_file", Content: "package main", IsError: false},
				{ToolCallID: "", Content: "orphan result"},
			}},
		}, nil)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		last := contents[len(contents)-1]
		if len(last.Parts) != 1 {
			t.Fatalf("Orphan result should be dropped, got %d parts", len(last.Parts))
		}
		fr := last.Parts[0].FunctionResponse
		if fr == nil || fr.Name != "read_file" {
			t.Fatalf("Expected function response for read_file, got %+v", last.Parts[0])
		}
		if fr.Response["content"] != "package main" || fr.Response["is_error"] != false {
			t.Errorf("Response payload wrong: %+v", fr.Response)
		}
	})

	t.Run("cached assistant turns replay verbatim", func(t *testing.T) {
		cached := &genai.Content{Role: "model", Parts: []*genai.Part{{Text: "with thought signature"}}}
		contents, _, err := convertMessages([]llm.CompletionMessage{
			{Role: llm.RoleUser, Content: "Go"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "t1", Name: "finish"}}},
			{Role: llm.RoleUser, Content: "Continue"},
		}, []*genai.Content{cached})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(contents) != 3 {
			t.Fatalf("Expected 3 contents, got %d", len(contents))
		}
		if contents[1] != cached {
			t.Error("Expected the cached content pointer to be replayed")
		}
	})
}

func TestConvertTools(t *testing.T) {
	defs := []tools.ToolDefinition{{
		Name:        "create_branch",
		Description: "Create a git branch",
		InputSchema: tools.InputSchema{
			Type: "object",
			Properties: map[string]tools.Property{
				"branch_name": {Type: "string", Description: "Branch to create"},
			},
			Required: []string{"branch_name"},
		},
	}}

	decls := convertTools(defs)
	if len(decls) != 1 {
		t.Fatalf("Expected 1 declaration, got %d", len(decls))
	}
	decl := decls[0]
	if decl.Name != "create_branch" || decl.Description != "Create a git branch" {
		t.Errorf("Declaration fields wrong: %+v", decl)
	}
	if decl.Parameters.Type != genai.TypeObject {
		t.Errorf("Expected object parameters, got %v", decl.Parameters.Type)
	}
	if decl.Parameters.Properties["branch_name"].Type != genai.TypeString {
		t.Errorf("Expected string property, got %+v", decl.Parameters.Properties["branch_name"])
	}
	if len(decl.Parameters.Required) != 1 || decl.Parameters.Required[0] != "branch_name" {
		t.Errorf("Required list wrong: %v", decl.Parameters.Required)
	}
}

func TestConvertProperty(t *testing.T) {
	tests := []struct {
		name     string
		prop     tools.Property
		wantType genai.Type
	}{
		{"string", tools.Property{Type: "string"}, genai.TypeString},
		{"number", tools.Property{Type: "number"}, genai.TypeNumber},
		{"integer", tools.Property{Type: "integer"}, genai.TypeInteger},
		{"boolean", tools.Property{Type: "boolean"}, genai.TypeBoolean},
		{"array", tools.Property{Type: "array"}, genai.TypeArray},
		{"object", tools.Property{Type: "object"}, genai.TypeObject},
		{"unknown falls back to string", tools.Property{Type: "uuid"}, genai.TypeString},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := convertProperty(&tt.prop); got.Type != tt.wantType {
				t.Errorf("Expected %v, got %v", tt.wantType, got.Type)
			}
		})
	}

	t.Run("array items and enum", func(t *testing.T) {
		prop := tools.Property{
			Type:  "array",
			Items: &tools.Property{Type: "string", Enum: []string{"a", "b"}},
		}
		schema := convertProperty(&prop)
		if schema.Items == nil || schema.Items.Type != genai.TypeString {
			t.Fatalf("Expected string items, got %+v", schema.Items)
		}
		if len(schema.Items.Enum) != 2 {
			t.Errorf("Expected enum on items, got %v", schema.Items.Enum)
		}
	})

	t.Run("nested object", func(t *testing.T) {
		prop := tools.Property{
			Type: "object",
			Properties: map[string]*tools.Property{
				"depth": {Type: "integer"},
			},
		}
		schema := convertProperty(&prop)
		if schema.Properties["depth"] == nil || schema.Properties["depth"].Type != genai.TypeInteger {
			t.Errorf("Nested property wrong: %+v", schema.Properties)
		}
	})
}

func TestConvertFunctionCalls(t *testing.T) {
	calls := []*genai.FunctionCall{
		{ID: "call_1", Name: "write_file", Args: map[string]any{"filepath": "a.go"}},
		{Name: "finish"}, // Gemini often omits the ID
	}

	got := convertFunctionCalls(calls)
	if len(got) != 2 {
		t.Fatalf("Expected 2 calls, got %d", len(got))
	}
	if got[0].ID != "call_1" || got[0].Name != "write_file" {
		t.Errorf("First call wrong: %+v", got[0])
	}
	if got[0].Parameters["filepath"] != "a.go" {
		t.Errorf("Parameters not carried: %+v", got[0].Parameters)
	}
	if got[1].ID != "finish" {
		t.Errorf("Missing ID should fall back to the name, got %q", got[1].ID)
	}
}
