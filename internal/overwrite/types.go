package overwrite

import (
	"context"
	"fmt"
	"time"
)

// SourceType names the kind of backend a data source points at.
type SourceType string

const (
	SourceSQL    SourceType = "sql"
	SourceAPI    SourceType = "api"
	SourceFile   SourceType = "file"
	SourceCache  SourceType = "cache"
	SourceMemory SourceType = "memory"
)

// DataSource describes one trusted backend. ReadOnly defaults to true
// and nothing in this package ever flips it back for SQL sources.
type DataSource struct {
	Name       string         `yaml:"name" json:"name"`
	Type       SourceType     `yaml:"type" json:"type"`
	Connection string         `yaml:"connection" json:"connection"`
	ReadOnly   bool           `yaml:"read_only" json:"read_only"`
	Options    map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
}

// NewDataSource creates a read-only source.
func NewDataSource(name string, t SourceType, connection string) *DataSource {
	return &DataSource{Name: name, Type: t, Connection: connection, ReadOnly: true}
}

// Rule binds one exact placeholder text to a source query. Fallback is
// used when the query fails, yields nothing, or fails validation; a
// rule with a fallback always resolves. Validate runs on the queried
// value before Transform.
type Rule struct {
	Placeholder string `yaml:"placeholder" json:"placeholder"`
	Source      string `yaml:"source" json:"source"`
	Query       string `yaml:"query" json:"query"`
	Field       string `yaml:"field,omitempty" json:"field,omitempty"`
	Fallback    string `yaml:"fallback,omitempty" json:"fallback,omitempty"`

	Validate  func(string) error  `yaml:"-" json:"-"`
	Transform func(string) string `yaml:"-" json:"-"`
}

// QueryResult is what a runner returns: column-keyed values of the
// first matching row.
type QueryResult struct {
	Values map[string]string
}

// First returns the named field, or any single value when the result
// has exactly one column and no field was requested.
func (r *QueryResult) First(field string) (string, bool) {
	if r == nil || len(r.Values) == 0 {
		return "", false
	}
	if field != "" {
		v, ok := r.Values[field]
		return v, ok
	}
	if len(r.Values) == 1 {
		for _, v := range r.Values {
			return v, true
		}
	}
	return "", false
}

// QueryRunner executes one query against a source type. Runners are
// registered per SourceType on the Overwriter.
type QueryRunner interface {
	Run(ctx context.Context, src *DataSource, query string, params map[string]string) (*QueryResult, error)
}

// Resolution records how one placeholder occurrence was handled.
type Resolution struct {
	Placeholder string `json:"placeholder"`
	Name        string `json:"name"`
	Resolved    bool   `json:"resolved"`
	Value       string `json:"value,omitempty"`
	Via         string `json:"via"` // "rule", "fallback", "context", or "none"
	Error       string `json:"error,omitempty"`
}

// Result is the outcome of one Overwrite pass.
type Result struct {
	Text        string        `json:"text"`
	Total       int           `json:"total"`
	Resolved    int           `json:"resolved"`
	Failed      int           `json:"failed"`
	Resolutions []Resolution  `json:"resolutions"`
	Duration    time.Duration `json:"duration"`
}

// Complete reports whether every placeholder resolved.
func (r *Result) Complete() bool { return r.Failed == 0 }

// UnknownSourceError reports a rule pointing at an unregistered source.
type UnknownSourceError struct {
	Source string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("overwrite: unknown data source %q", e.Source)
}
