package model

import "sort"

// TagSet is the append-only side channel a pipeline stage uses to flag
// findings for later stages (e.g. the PII check tagging categories the
// overwrite and audit stages read). Tags can be added, never removed.
type TagSet struct {
	tags map[string]bool
}

// NewTagSet returns an empty tag set.
func NewTagSet() *TagSet {
	return &TagSet{tags: make(map[string]bool)}
}

// Add records a tag. Adding an existing tag is a no-op.
func (t *TagSet) Add(tag string) {
	if tag == "" {
		return
	}
	t.tags[tag] = true
}

// Has reports whether the tag was recorded.
func (t *TagSet) Has(tag string) bool {
	return t.tags[tag]
}

// List returns all tags in sorted order.
func (t *TagSet) List() []string {
	out := make([]string, 0, len(t.tags))
	for tag := range t.tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of distinct tags.
func (t *TagSet) Len() int {
	return len(t.tags)
}
