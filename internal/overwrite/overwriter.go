package overwrite

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Overwriter resolves placeholders against registered sources. Rules
// match the exact placeholder text including delimiters; names with no
// rule fall back to the request context values.
type Overwriter struct {
	mu      sync.RWMutex
	sources map[string]*DataSource
	runners map[SourceType]QueryRunner
	rules   map[string]*Rule

	stats Stats
}

// Stats counts work across all Overwrite passes.
type Stats struct {
	Runs         int `json:"runs"`
	Placeholders int `json:"placeholders"`
	Resolved     int `json:"resolved"`
	Failed       int `json:"failed"`
}

// New creates an empty Overwriter with the in-memory runner installed.
func New() *Overwriter {
	o := &Overwriter{
		sources: make(map[string]*DataSource),
		runners: make(map[SourceType]QueryRunner),
		rules:   make(map[string]*Rule),
	}
	o.RegisterRunner(SourceMemory, NewMemoryRunner(nil))
	return o
}

// AddSource registers a data source by name.
func (o *Overwriter) AddSource(src *DataSource) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources[src.Name] = src
}

// RegisterRunner installs the runner for a source type.
func (o *Overwriter) RegisterRunner(t SourceType, r QueryRunner) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runners[t] = r
}

// AddRule binds a rule to its exact placeholder text. A rule naming an
// unregistered source is rejected up front rather than failing at
// resolve time.
func (o *Overwriter) AddRule(r *Rule) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.sources[r.Source]; !ok {
		return &UnknownSourceError{Source: r.Source}
	}
	o.rules[r.Placeholder] = r
	return nil
}

// Stats returns a snapshot of the counters.
func (o *Overwriter) Stats() Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stats
}

// Overwrite resolves every placeholder in text. Unresolved occurrences
// keep their original text; the result reports each one. A text with
// no placeholders passes through untouched.
func (o *Overwriter) Overwrite(ctx context.Context, text string, contextValues map[string]string) *Result {
	start := time.Now()
	placeholders := Parse(text)

	res := &Result{Text: text, Total: len(placeholders)}
	if len(placeholders) == 0 {
		res.Duration = time.Since(start)
		o.count(res)
		return res
	}

	var b strings.Builder
	last := 0
	for i := range placeholders {
		p := &placeholders[i]
		r := o.resolveOne(ctx, p, contextValues)
		res.Resolutions = append(res.Resolutions, r)

		b.WriteString(text[last:p.Start])
		if r.Resolved {
			res.Resolved++
			b.WriteString(r.Value)
		} else {
			res.Failed++
			b.WriteString(p.Raw)
		}
		last = p.End
	}
	b.WriteString(text[last:])

	res.Text = b.String()
	res.Duration = time.Since(start)
	o.count(res)
	return res
}

func (o *Overwriter) count(res *Result) {
	o.mu.Lock()
	o.stats.Runs++
	o.stats.Placeholders += res.Total
	o.stats.Resolved += res.Resolved
	o.stats.Failed += res.Failed
	o.mu.Unlock()
}

func (o *Overwriter) resolveOne(ctx context.Context, p *Placeholder, contextValues map[string]string) Resolution {
	o.mu.RLock()
	rule := o.rules[p.Raw]
	o.mu.RUnlock()

	if rule == nil {
		if v, ok := contextValues[p.Name]; ok {
			return Resolution{Placeholder: p.Raw, Name: p.Name, Resolved: true, Value: v, Via: "context"}
		}
		return Resolution{Placeholder: p.Raw, Name: p.Name, Via: "none"}
	}

	value, err := o.runRule(ctx, rule, contextValues)
	if err == nil && value != "" && rule.Validate != nil {
		if verr := rule.Validate(value); verr != nil {
			err = fmt.Errorf("overwrite: validate %q: %w", rule.Placeholder, verr)
			value = ""
		}
	}
	if err != nil || value == "" {
		// Fallback counts as a successful resolution.
		if rule.Fallback != "" {
			return Resolution{Placeholder: p.Raw, Name: p.Name, Resolved: true, Value: rule.Fallback, Via: "fallback"}
		}
		r := Resolution{Placeholder: p.Raw, Name: p.Name, Via: "rule"}
		if err != nil {
			r.Error = err.Error()
		} else {
			r.Error = "query returned no value"
		}
		return r
	}

	if rule.Transform != nil {
		value = rule.Transform(value)
	}
	return Resolution{Placeholder: p.Raw, Name: p.Name, Resolved: true, Value: value, Via: "rule"}
}

func (o *Overwriter) runRule(ctx context.Context, rule *Rule, contextValues map[string]string) (string, error) {
	o.mu.RLock()
	src, ok := o.sources[rule.Source]
	var runner QueryRunner
	if ok {
		runner = o.runners[src.Type]
	}
	o.mu.RUnlock()

	if src == nil {
		return "", &UnknownSourceError{Source: rule.Source}
	}
	if runner == nil {
		return "", &UnknownSourceError{Source: string(src.Type)}
	}

	query := BuildQuery(rule.Query, contextValues)
	qr, err := runner.Run(ctx, src, query, contextValues)
	if err != nil {
		return "", err
	}
	v, _ := qr.First(rule.Field)
	return v, nil
}

var (
	queryParamRe = regexp.MustCompile(`:(\w+)`)
	// literalChars keeps word characters, whitespace, dots, and dashes.
	literalChars = regexp.MustCompile(`[^\w\s.-]`)
)

// BuildQuery substitutes :name parameters into a query template.
// Numeric values inline as-is; everything else is stripped to a safe
// literal character set and single-quoted.
func BuildQuery(template string, params map[string]string) string {
	return queryParamRe.ReplaceAllStringFunc(template, func(m string) string {
		key := m[1:]
		v, ok := params[key]
		if !ok {
			return m
		}
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			return v
		}
		return "'" + literalChars.ReplaceAllString(v, "") + "'"
	})
}
