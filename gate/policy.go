package gate

import (
	"fmt"
	"strings"
)

// Policy declares that one (method, path) pair requires verified payment.
type Policy struct {
	Method           string
	Path             string
	AcceptedNetworks []string
	Description      string
}

type routeKey struct {
	method string
	path   string
}

// Table is the immutable route policy registry. Lookup is exact: methods are
// normalized to upper case, paths are case sensitive, and no pattern matching
// is performed.
type Table struct {
	entries map[routeKey]Policy
}

// NewTable builds a Table from the configured policies. Duplicate
// (method, path) keys are resolved last-write-wins, which lets later
// configuration entries override earlier ones.
func NewTable(policies []Policy) (*Table, error) {
	entries := make(map[routeKey]Policy, len(policies))
	for i, p := range policies {
		method := strings.ToUpper(strings.TrimSpace(p.Method))
		if method == "" {
			return nil, fmt.Errorf("route policy %d: method required", i)
		}
		path := strings.TrimSpace(p.Path)
		if !strings.HasPrefix(path, "/") {
			return nil, fmt.Errorf("route policy %d: path must start with '/'", i)
		}
		p.Method = method
		p.Path = path
		entries[routeKey{method: method, path: path}] = p
	}
	return &Table{entries: entries}, nil
}

// Lookup returns the policy for (method, path), if any. The method is
// normalized to upper case before matching.
func (t *Table) Lookup(method, path string) (Policy, bool) {
	if t == nil {
		return Policy{}, false
	}
	p, ok := t.entries[routeKey{method: strings.ToUpper(method), path: path}]
	return p, ok
}

// Len reports the number of distinct restricted routes.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
