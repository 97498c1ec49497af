package gate

import "testing"

func TestTableLastWriteWins(t *testing.T) {
	table, err := NewTable([]Policy{
		{Method: "GET", Path: "/api/weather", Description: "first"},
		{Method: "GET", Path: "/api/weather", Description: "second"},
	})
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("expected one entry after overwrite, got %d", table.Len())
	}
	policy, ok := table.Lookup("GET", "/api/weather")
	if !ok {
		t.Fatalf("expected route to be restricted")
	}
	if policy.Description != "second" {
		t.Fatalf("expected later entry to win, got %q", policy.Description)
	}
}

func TestTableMethodNormalization(t *testing.T) {
	table, err := NewTable([]Policy{{Method: "get", Path: "/api/weather"}})
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	if _, ok := table.Lookup("GET", "/api/weather"); !ok {
		t.Fatalf("expected upper-case lookup to match lower-case config")
	}
	if _, ok := table.Lookup("get", "/api/weather"); !ok {
		t.Fatalf("expected lookup to normalize the method")
	}
}

func TestTablePathCaseSensitive(t *testing.T) {
	table, err := NewTable([]Policy{{Method: "GET", Path: "/api/weather"}})
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	if _, ok := table.Lookup("GET", "/API/weather"); ok {
		t.Fatalf("expected path matching to be case sensitive")
	}
	if _, ok := table.Lookup("GET", "/api/weather/today"); ok {
		t.Fatalf("expected exact-match lookup, no prefix matching")
	}
}

func TestTableLoadIdempotent(t *testing.T) {
	policies := []Policy{
		{Method: "GET", Path: "/api/weather"},
		{Method: "POST", Path: "/api/ai/completions"},
	}
	first, err := NewTable(policies)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	second, err := NewTable(policies)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	for _, p := range policies {
		_, okFirst := first.Lookup(p.Method, p.Path)
		_, okSecond := second.Lookup(p.Method, p.Path)
		if okFirst != okSecond {
			t.Fatalf("tables disagree on %s %s", p.Method, p.Path)
		}
	}
	if first.Len() != second.Len() {
		t.Fatalf("tables differ in size: %d vs %d", first.Len(), second.Len())
	}
}

func TestTableRejectsInvalidPolicies(t *testing.T) {
	if _, err := NewTable([]Policy{{Method: "", Path: "/x"}}); err == nil {
		t.Fatalf("expected error for empty method")
	}
	if _, err := NewTable([]Policy{{Method: "GET", Path: "nope"}}); err == nil {
		t.Fatalf("expected error for path without leading slash")
	}
}
