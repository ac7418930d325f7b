package tools

import "sort"

// Kind partitions tools by side effect. READ tools run without confirmation;
// WRITE and TEST tools go through the two-step confirm flow.
type Kind string

const (
	KindRead  Kind = "READ"
	KindWrite Kind = "WRITE"
	KindTest  Kind = "TEST"
)

// Tool describes one callable operation.
type Tool struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Kind        Kind     `json:"type"`
	Params      []string `json:"params"`
}

// Registry is the fixed tool catalog. TEST tools are only served when test
// endpoints are enabled.
type Registry struct {
	tools       map[string]Tool
	includeTest bool
}

func NewRegistry(includeTest bool) *Registry {
	defs := []Tool{
		{Name: "jobs.list", Description: "List all jobs (newest first)", Kind: KindRead, Params: nil},
		{Name: "jobs.get", Description: "Get job details by ID", Kind: KindRead, Params: []string{"job_id"}},
		{Name: "jobs.create", Description: "Create a new job", Kind: KindWrite, Params: []string{"title", "payload"}},
		{Name: "jobs.update", Description: "Update a job title or payload", Kind: KindWrite, Params: []string{"job_id", "title"}},
		{Name: "jobs.approve", Description: "Approve a job waiting for approval", Kind: KindWrite, Params: []string{"job_id"}},
		{Name: "jobs.reject", Description: "Reject a job waiting for approval", Kind: KindWrite, Params: []string{"job_id"}},
		{Name: "jobs.set_needs_approval", Description: "Park a job behind the approval gate", Kind: KindTest, Params: []string{"job_id"}},
		{Name: "slack.simulate_mention", Description: "Simulate a Slack mention event", Kind: KindTest, Params: []string{"text", "user", "channel"}},
	}
	r := &Registry{tools: make(map[string]Tool, len(defs)), includeTest: includeTest}
	for _, t := range defs {
		r.tools[t.Name] = t
	}
	return r
}

// Lookup returns the tool definition; TEST tools are invisible unless the
// registry was built with them enabled.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}
	if t.Kind == KindTest && !r.includeTest {
		return Tool{}, false
	}
	return t, true
}

// List returns the visible catalog sorted by name.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		if t.Kind == KindTest && !r.includeTest {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
