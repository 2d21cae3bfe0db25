package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"issueflow/pkg/git"
	"issueflow/pkg/github"
)

// Deps carries the collaborators a tool may need. Every factory
// receives the full set and picks what it uses.
type Deps struct {
	// Workspace is the absolute path of the working clone. File tools
	// resolve every path against it and refuse to step outside.
	Workspace string

	Git    *git.Runner
	GitHub github.GitHubClient

	// IssueNumber is the issue the current run works on. Pull requests
	// created by tools get a "Closes #N" footer pointing at it.
	IssueNumber int

	// BaseBranch is the branch pull requests merge into.
	BaseBranch string
}

// Factory builds a tool bound to a set of deps.
type Factory func(deps Deps) (Tool, error)

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
	sealed     bool
)

// Register adds a tool factory under its canonical name. Tools call it
// from init; registering after the registry is sealed panics, as does a
// duplicate name.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if sealed {
		panic(fmt.Sprintf("tools: Register(%q) after registry was sealed", name))
	}
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("tools: duplicate registration for %q", name))
	}
	registry[name] = factory
}

// RegisteredNames returns every registered tool name, sorted.
func RegisteredNames() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Provider hands out tool instances for one agent run. Instances are
// built lazily and cached, so a tool the model never calls is never
// constructed.
type Provider struct {
	deps    Deps
	allowed []string

	mu    sync.Mutex
	cache map[string]Tool
}

// NewProvider seals the registry and returns a provider restricted to
// the allowed names, preserving their order for presentation to the
// model. Unknown names are an error so a typo in an allowlist fails at
// startup instead of surfacing mid-run.
func NewProvider(deps Deps, allowed []string) (*Provider, error) {
	registryMu.Lock()
	sealed = true
	for _, name := range allowed {
		if _, ok := registry[name]; !ok {
			registryMu.Unlock()
			return nil, fmt.Errorf("unknown tool %q in allowlist", name)
		}
	}
	registryMu.Unlock()

	return &Provider{
		deps:    deps,
		allowed: append([]string(nil), allowed...),
		cache:   map[string]Tool{},
	}, nil
}

// Get returns the named tool, building it on first use. Names outside
// the provider's allowlist do not resolve even when registered.
func (p *Provider) Get(name string) (Tool, error) {
	if !p.allows(name) {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.cache[name]; ok {
		return t, nil
	}
	registryMu.Lock()
	factory := registry[name]
	registryMu.Unlock()
	t, err := factory(p.deps)
	if err != nil {
		return nil, fmt.Errorf("building tool %q: %w", name, err)
	}
	p.cache[name] = t
	return t, nil
}

func (p *Provider) allows(name string) bool {
	for _, a := range p.allowed {
		if a == name {
			return true
		}
	}
	return false
}

// Names returns the allowlist in presentation order.
func (p *Provider) Names() []string {
	return append([]string(nil), p.allowed...)
}

// Definitions returns the schemas of all allowed tools in presentation
// order, ready to attach to an LLM request.
func (p *Provider) Definitions() ([]ToolDefinition, error) {
	defs := make([]ToolDefinition, 0, len(p.allowed))
	for _, name := range p.allowed {
		t, err := p.Get(name)
		if err != nil {
			return nil, err
		}
		defs = append(defs, t.Definition())
	}
	return defs, nil
}

// PromptDocumentation concatenates the per-tool prompt blurbs in
// presentation order, one per line.
func (p *Provider) PromptDocumentation() (string, error) {
	var b strings.Builder
	for _, name := range p.allowed {
		t, err := p.Get(name)
		if err != nil {
			return "", err
		}
		doc := strings.TrimSpace(t.PromptDocumentation())
		if doc == "" {
			continue
		}
		b.WriteString(doc)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
