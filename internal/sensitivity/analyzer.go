// Package sensitivity scores free text for data-exposure risk. The
// score drives execution-mode routing: the higher the score, the less
// of the request may leave the local trust boundary.
package sensitivity

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/gk0729/LobsterShell/internal/model"
)

const (
	// defaultScore applies when no rule matches.
	defaultScore = 0.1
	// countBonusStep and countBonusCap weight the number of matched rules.
	countBonusStep = 0.05
	countBonusCap  = 0.15
)

// Signals carries caller-supplied context that adjusts the base score.
type Signals struct {
	UserMarkedSensitive bool
	Admin               bool
	Environment         string
}

// Details breaks down one analysis for reporting.
type Details struct {
	RuleCount     int  `json:"rule_count"`
	ContentLength int  `json:"content_length"`
	HasPII        bool `json:"has_pii"`
	HasCredential bool `json:"has_credential"`
}

// Analysis is the outcome of scoring one input. Score is always in [0, 1].
type Analysis struct {
	Score      float64  `json:"score"`
	Matched    []Rule   `json:"matched_rules"`
	Categories []string `json:"categories"`
	Details    Details  `json:"details"`
}

// Analyzer matches a rule table against content. Safe for concurrent use;
// AddRule may extend the table at runtime.
type Analyzer struct {
	mu    sync.RWMutex
	rules []Rule
	cache map[string]*regexp.Regexp
}

// NewAnalyzer creates an Analyzer from a config. Nil config uses defaults.
func NewAnalyzer(cfg *Config) *Analyzer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Analyzer{
		rules: append([]Rule(nil), cfg.Rules...),
		cache: make(map[string]*regexp.Regexp),
	}
}

// AddRule appends a rule to the table.
func (a *Analyzer) AddRule(r Rule) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = append(a.rules, r)
}

// Analyze scores content and tags detected categories into the tag set
// for downstream stages. It never fails: unmatchable content scores the
// default. Score = min(1, max(matched scores) + min(0.05·count, 0.15)),
// then signal adjustments, each clamped to 1.0.
func (a *Analyzer) Analyze(content string, sig Signals, tags *model.TagSet) Analysis {
	a.mu.RLock()
	rules := a.rules
	a.mu.RUnlock()

	var matched []Rule
	categories := make(map[string]bool)

	for _, rule := range rules {
		if a.matches(content, rule) {
			matched = append(matched, rule)
			categories[rule.Category] = true
		}
	}

	score := defaultScore
	if len(matched) > 0 {
		best := 0.0
		for _, r := range matched {
			if r.Score > best {
				best = r.Score
			}
		}
		bonus := math.Min(float64(len(matched))*countBonusStep, countBonusCap)
		score = math.Min(best+bonus, 1.0)
	}

	score = adjust(score, sig)
	score = math.Round(score*100) / 100

	catList := make([]string, 0, len(categories))
	for c := range categories {
		catList = append(catList, c)
		if tags != nil {
			tags.Add(c)
		}
	}
	sort.Strings(catList)

	return Analysis{
		Score:      score,
		Matched:    matched,
		Categories: catList,
		Details: Details{
			RuleCount:     len(matched),
			ContentLength: len(content),
			HasPII:        categories["identity"],
			HasCredential: categories["credential"],
		},
	}
}

// matches applies one rule. Regex rules run against the raw content with
// case-insensitive matching; literal rules compare lower-cased, which
// leaves non-Latin scripts untouched.
func (a *Analyzer) matches(content string, rule Rule) bool {
	if rule.Regex {
		re := a.compiled(rule.Pattern)
		if re == nil {
			return false
		}
		return re.MatchString(content)
	}
	return strings.Contains(strings.ToLower(content), strings.ToLower(rule.Pattern))
}

func (a *Analyzer) compiled(pattern string) *regexp.Regexp {
	a.mu.RLock()
	re, ok := a.cache[pattern]
	a.mu.RUnlock()
	if ok {
		return re
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		// An unparsable rule never matches.
		re = nil
	}

	a.mu.Lock()
	a.cache[pattern] = re
	a.mu.Unlock()
	return re
}

func adjust(score float64, sig Signals) float64 {
	if sig.UserMarkedSensitive {
		score = math.Max(score, 0.9)
	}
	if sig.Admin {
		score = math.Min(score*1.1, 1.0)
	}
	if sig.Environment == "production" {
		score = math.Min(score*1.15, 1.0)
	}
	return score
}
