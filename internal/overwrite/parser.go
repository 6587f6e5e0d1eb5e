// Package overwrite resolves placeholders in generated output against
// trusted data sources, so the final text carries real values instead
// of whatever the planner invented.
package overwrite

import (
	"regexp"
	"sort"
)

// Placeholder is one occurrence found in a text, with its span. The
// same Name can occur many times; each occurrence is its own entry.
type Placeholder struct {
	// Raw is the full matched text including delimiters.
	Raw string
	// Name is the dotted path inside the delimiters, e.g. "user.name".
	Name  string
	Start int
	End   int
}

// The four accepted syntaxes. Each pattern captures the dotted path.
var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\{\{\s*([a-zA-Z_][\w.]*)\s*\}\}`),
	regexp.MustCompile(`\$\{\s*([a-zA-Z_][\w.]*)\s*\}`),
	regexp.MustCompile(`\[\[\s*([a-zA-Z_][\w.]*)\s*\]\]`),
	regexp.MustCompile(`\$([a-zA-Z_][\w.]*)`),
}

// Parse finds every placeholder occurrence, ordered by position.
// Overlapping matches keep the earliest, longest one, so "${a.b}" is
// never double-counted as the bare "$a.b" form.
func Parse(text string) []Placeholder {
	var found []Placeholder
	for _, re := range placeholderPatterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			found = append(found, Placeholder{
				Raw:   text[m[0]:m[1]],
				Name:  text[m[2]:m[3]],
				Start: m[0],
				End:   m[1],
			})
		}
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].Start != found[j].Start {
			return found[i].Start < found[j].Start
		}
		return found[i].End > found[j].End
	})

	var out []Placeholder
	lastEnd := -1
	for _, p := range found {
		if p.Start < lastEnd {
			continue
		}
		out = append(out, p)
		lastEnd = p.End
	}
	return out
}

// Names returns the distinct placeholder names in first-seen order.
func Names(placeholders []Placeholder) []string {
	seen := make(map[string]bool, len(placeholders))
	var out []string
	for _, p := range placeholders {
		if !seen[p.Name] {
			seen[p.Name] = true
			out = append(out, p.Name)
		}
	}
	return out
}
