// Package tools provides the workflow tool registry and implementations
// exposed to the coding agent.
package tools

import "context"

// Tool is implemented by every workflow tool exposed to the LLM.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string

	// Definition returns the tool definition for LLM function calling.
	Definition() ToolDefinition

	// PromptDocumentation returns formatted tool documentation for prompts.
	PromptDocumentation() string

	// Exec executes the tool with the given arguments. Arguments arrive as
	// a map decoded from the model's JSON tool call.
	Exec(ctx context.Context, args map[string]any) (*ExecResult, error)
}

// ToolDefinition describes a tool to the LLM provider.
//
//nolint:revive // Keep name for clarity at call sites
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// InputSchema is a JSON-schema object describing a tool's parameters.
type InputSchema struct {
	Properties map[string]Property `json:"properties,omitempty"`
	Type       string              `json:"type"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes a single parameter in an input schema.
//
//nolint:govet // fieldalignment: logical grouping preferred
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
}

// ArtifactKind identifies the workflow milestone a tool produced.
type ArtifactKind int

const (
	// ArtifactNone means the execution produced no milestone.
	ArtifactNone ArtifactKind = iota
	// ArtifactBranchCreated marks a new working branch.
	ArtifactBranchCreated
	// ArtifactPRCreated marks an opened pull request.
	ArtifactPRCreated
	// ArtifactFinished marks the agent declaring its work complete.
	ArtifactFinished
)

// Artifact is the typed side channel for workflow milestones. The loop folds
// artifacts into the session so downstream code never parses observation text.
//
//nolint:govet // fieldalignment: logical grouping preferred
type Artifact struct {
	Kind     ArtifactKind `json:"kind"`
	Branch   string       `json:"branch,omitempty"`
	PRNumber int          `json:"pr_number,omitempty"`
	PRURL    string       `json:"pr_url,omitempty"`
	Summary  string       `json:"summary,omitempty"`
}

// ExecResult is the outcome of a tool execution. Content is the observation
// fed back to the LLM verbatim; Artifact, when set, carries the milestone.
type ExecResult struct {
	Artifact *Artifact `json:"artifact,omitempty"`
	Content  string    `json:"content"`
}
