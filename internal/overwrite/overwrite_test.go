package overwrite

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
)

func TestParseAllSyntaxes(t *testing.T) {
	text := "a {{user.name}} b ${order.id} c $total d [[db.count]]"
	got := Parse(text)
	if len(got) != 4 {
		t.Fatalf("found %d placeholders, want 4: %+v", len(got), got)
	}
	wantNames := []string{"user.name", "order.id", "total", "db.count"}
	for i, p := range got {
		if p.Name != wantNames[i] {
			t.Errorf("placeholder %d name = %q, want %q", i, p.Name, wantNames[i])
		}
		if text[p.Start:p.End] != p.Raw {
			t.Errorf("span mismatch for %q", p.Raw)
		}
	}
}

func TestParseDollarBraceNotDoubleCounted(t *testing.T) {
	got := Parse("value: ${a.b}")
	if len(got) != 1 || got[0].Raw != "${a.b}" {
		t.Fatalf("overlap handling wrong: %+v", got)
	}
}

func TestParseDuplicatesKeptInOrder(t *testing.T) {
	got := Parse("{{x}} then {{x}} again")
	if len(got) != 2 {
		t.Fatalf("duplicates must each appear: %+v", got)
	}
	if got[0].Start >= got[1].Start {
		t.Error("occurrences out of order")
	}
	if names := Names(got); len(names) != 1 || names[0] != "x" {
		t.Errorf("Names = %v", names)
	}
}

func TestOverwriteNoPlaceholdersIsNoOp(t *testing.T) {
	o := New()
	res := o.Overwrite(context.Background(), "Hello World", nil)
	if res.Text != "Hello World" || res.Total != 0 || !res.Complete() {
		t.Fatalf("no-op violated: %+v", res)
	}
}

func TestOverwriteContextFallback(t *testing.T) {
	o := New()
	res := o.Overwrite(context.Background(), "Name: {{name}}", map[string]string{"name": "John"})
	if res.Text != "Name: John" {
		t.Fatalf("text = %q", res.Text)
	}
	if res.Resolutions[0].Via != "context" {
		t.Errorf("via = %s", res.Resolutions[0].Via)
	}
}

func TestOverwriteUnresolvedKeepsOriginal(t *testing.T) {
	o := New()
	res := o.Overwrite(context.Background(), "Count: {{db.count}}", nil)
	if res.Text != "Count: {{db.count}}" {
		t.Fatalf("unresolved placeholder rewritten: %q", res.Text)
	}
	if res.Failed != 1 || res.Complete() {
		t.Errorf("result: %+v", res)
	}
}

func TestOverwriteRuleViaMemorySource(t *testing.T) {
	o := New()
	runner := NewMemoryRunner(map[string]string{"user-name-query": "Alice"})
	o.RegisterRunner(SourceMemory, runner)
	o.AddSource(NewDataSource("mem", SourceMemory, ""))
	if err := o.AddRule(&Rule{Placeholder: "{{user.name}}", Source: "mem", Query: "user-name-query"}); err != nil {
		t.Fatal(err)
	}

	res := o.Overwrite(context.Background(), "Hi {{user.name}}!", nil)
	if res.Text != "Hi Alice!" {
		t.Fatalf("text = %q", res.Text)
	}
	if res.Resolutions[0].Via != "rule" {
		t.Errorf("via = %s", res.Resolutions[0].Via)
	}
}

func TestOverwriteFallbackCountsAsSuccess(t *testing.T) {
	o := New()
	o.AddSource(NewDataSource("mem", SourceMemory, ""))
	o.AddRule(&Rule{Placeholder: "{{missing}}", Source: "mem", Query: "nope", Fallback: "n/a"})

	res := o.Overwrite(context.Background(), "v={{missing}}", nil)
	if res.Text != "v=n/a" || res.Failed != 0 {
		t.Fatalf("fallback not applied: %+v", res)
	}
	if res.Resolutions[0].Via != "fallback" {
		t.Errorf("via = %s", res.Resolutions[0].Via)
	}
}

func TestOverwriteTransform(t *testing.T) {
	o := New()
	runner := NewMemoryRunner(map[string]string{"q": "alice"})
	o.RegisterRunner(SourceMemory, runner)
	o.AddSource(NewDataSource("mem", SourceMemory, ""))
	o.AddRule(&Rule{Placeholder: "{{u}}", Source: "mem", Query: "q", Transform: strings.ToUpper})

	res := o.Overwrite(context.Background(), "{{u}}", nil)
	if res.Text != "ALICE" {
		t.Fatalf("transform not applied: %q", res.Text)
	}
}

func TestOverwriteValidateRejectsValue(t *testing.T) {
	o := New()
	runner := NewMemoryRunner(map[string]string{"q": "not-a-number"})
	o.RegisterRunner(SourceMemory, runner)
	o.AddSource(NewDataSource("mem", SourceMemory, ""))

	numeric := func(v string) error {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("not numeric: %q", v)
		}
		return nil
	}

	// Validation failure falls back when a fallback exists.
	o.AddRule(&Rule{Placeholder: "{{n}}", Source: "mem", Query: "q", Validate: numeric, Fallback: "0"})
	res := o.Overwrite(context.Background(), "n={{n}}", nil)
	if res.Text != "n=0" || res.Failed != 0 {
		t.Fatalf("fallback not applied on validation failure: %+v", res)
	}

	// Without a fallback the occurrence fails and keeps its text.
	o.AddRule(&Rule{Placeholder: "{{m}}", Source: "mem", Query: "q", Validate: numeric})
	res = o.Overwrite(context.Background(), "m={{m}}", nil)
	if res.Failed != 1 || res.Text != "m={{m}}" {
		t.Fatalf("validation failure not reported: %+v", res)
	}
	if !strings.Contains(res.Resolutions[0].Error, "not numeric") {
		t.Errorf("error = %q", res.Resolutions[0].Error)
	}
}

func TestOverwriteValidateRunsBeforeTransform(t *testing.T) {
	o := New()
	runner := NewMemoryRunner(map[string]string{"q": "alice"})
	o.RegisterRunner(SourceMemory, runner)
	o.AddSource(NewDataSource("mem", SourceMemory, ""))

	var seen string
	o.AddRule(&Rule{
		Placeholder: "{{u}}",
		Source:      "mem",
		Query:       "q",
		Validate:    func(v string) error { seen = v; return nil },
		Transform:   strings.ToUpper,
	})

	res := o.Overwrite(context.Background(), "{{u}}", nil)
	if res.Text != "ALICE" {
		t.Fatalf("transform not applied: %q", res.Text)
	}
	if seen != "alice" {
		t.Errorf("validator saw %q, want the pre-transform value", seen)
	}
}

func TestAddRuleUnknownSource(t *testing.T) {
	o := New()
	err := o.AddRule(&Rule{Placeholder: "{{x}}", Source: "ghost", Query: "q"})
	var ue *UnknownSourceError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnknownSourceError, got %v", err)
	}
}

func TestStatsAccumulate(t *testing.T) {
	o := New()
	o.Overwrite(context.Background(), "plain", nil)
	o.Overwrite(context.Background(), "{{a}}", map[string]string{"a": "1"})
	o.Overwrite(context.Background(), "{{b}}", nil)

	st := o.Stats()
	if st.Runs != 3 || st.Placeholders != 2 || st.Resolved != 1 || st.Failed != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestBuildQuerySanitization(t *testing.T) {
	tests := []struct {
		template string
		params   map[string]string
		want     string
	}{
		{"SELECT name FROM users WHERE id = :id", map[string]string{"id": "42"}, "SELECT name FROM users WHERE id = 42"},
		{"SELECT * FROM t WHERE n = :n", map[string]string{"n": "O'Brien"}, "SELECT * FROM t WHERE n = 'OBrien'"},
		{"SELECT * FROM t WHERE n = :n", map[string]string{"n": "x'; DROP TABLE t--"}, "SELECT * FROM t WHERE n = 'x DROP TABLE t--'"},
		{"SELECT * FROM t WHERE n = :n", nil, "SELECT * FROM t WHERE n = :n"},
	}
	for _, tt := range tests {
		if got := BuildQuery(tt.template, tt.params); got != tt.want {
			t.Errorf("BuildQuery(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestCheckReadOnlyRejectsWrites(t *testing.T) {
	statements := []string{
		"INSERT INTO t VALUES (1)",
		"update t set x = 1",
		"Delete From t",
		"DROP TABLE t",
		"create table t (x int)",
		"ALTER TABLE t ADD y int",
		"truncate table t",
		"GRANT ALL ON t TO u",
		"revoke all on t from u",
		"MERGE INTO t USING s ON t.id = s.id",
		"SELECT * FROM t; DROP TABLE t",
	}
	for _, sql := range statements {
		if err := CheckReadOnly("db", sql); err == nil {
			t.Errorf("write statement accepted: %q", sql)
		}
	}

	if err := CheckReadOnly("db", "  SELECT name FROM users  "); err != nil {
		t.Fatalf("plain select rejected: %v", err)
	}

	var ro *ReadOnlyViolationError
	err := CheckReadOnly("db", "DROP TABLE t")
	if !errors.As(err, &ro) || ro.Keyword == "" {
		t.Fatalf("expected ReadOnlyViolationError, got %v", err)
	}
}
