package ir

import "github.com/hashicorp/hcl/v2"

// Config is the decoded declaration: every resource, provider settings,
// backend selection, and output definitions.
type Config struct {
	Resources []*Resource
	Providers map[string]map[string]string
	Backend   *Backend
	Outputs   []*Output
}

// Resource returns the declared resource at addr, or nil.
func (c *Config) Resource(addr string) *Resource {
	for _, r := range c.Resources {
		if r.Addr() == addr {
			return r
		}
	}
	return nil
}

// Backend selects where the state snapshot lives.
type Backend struct {
	Type     string // "local" or "s3"
	Settings map[string]string
}

// Output is a named value computed from resource outputs after apply.
type Output struct {
	Name      string
	Value     hcl.Expression
	Sensitive bool
	DeclRange hcl.Range
}
