// Package mode routes a request to an execution mode based on its
// sensitivity score, caller overrides, and registered decision hooks.
package mode

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/gk0729/LobsterShell/internal/model"
	"github.com/gk0729/LobsterShell/internal/sensitivity"
)

// HookInput is what a custom decision hook sees.
type HookInput struct {
	Content  string
	UserID   string
	Score    float64
	Analysis sensitivity.Analysis
	Signals  sensitivity.Signals
}

// Hook can short-circuit the default decision rule. The first hook
// returning a non-nil decision wins.
type Hook func(in HookInput) *model.ModeDecision

// Engine decides the execution mode for each request.
type Engine struct {
	analyzer *sensitivity.Analyzer
	cfg      *Config

	mu        sync.RWMutex
	overrides map[string]model.ExecutionMode
	hooks     []Hook
}

// NewEngine creates an Engine. Nil config uses defaults; nil analyzer
// gets a default rule table.
func NewEngine(cfg *Config, analyzer *sensitivity.Analyzer) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if analyzer == nil {
		analyzer = sensitivity.NewAnalyzer(nil)
	}
	return &Engine{
		analyzer:  analyzer,
		cfg:       cfg,
		overrides: make(map[string]model.ExecutionMode),
	}
}

// Fingerprint returns the override key for a specific content string.
func Fingerprint(content string) string {
	h := sha256.Sum256([]byte(content))
	return "content:" + hex.EncodeToString(h[:6])
}

// SetContentOverride pins the mode for requests whose content matches exactly.
func (e *Engine) SetContentOverride(content string, m model.ExecutionMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overrides[Fingerprint(content)] = m
}

// SetUserOverride pins the mode for all requests from a user.
func (e *Engine) SetUserOverride(userID string, m model.ExecutionMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overrides["user:"+userID] = m
}

// AddHook registers a custom decision hook. Hooks run after override
// lookup and analysis, in registration order.
func (e *Engine) AddHook(h Hook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = append(e.hooks, h)
}

// Decide picks the execution mode for one request. Override lookup wins
// outright with confidence 1.0 and skips analysis; otherwise the
// analyzer scores the content, hooks get a chance, and the threshold
// rule applies.
func (e *Engine) Decide(content, userID string, sig sensitivity.Signals, tags *model.TagSet) model.ModeDecision {
	if d, ok := e.checkOverride(content, userID); ok {
		return d
	}

	analysis := e.analyzer.Analyze(content, sig, tags)
	score := analysis.Score

	e.mu.RLock()
	hooks := e.hooks
	e.mu.RUnlock()
	for _, h := range hooks {
		if d := h(HookInput{
			Content:  content,
			UserID:   userID,
			Score:    score,
			Analysis: analysis,
			Signals:  sig,
		}); d != nil {
			return *d
		}
	}

	return e.thresholdDecision(score)
}

func (e *Engine) checkOverride(content, userID string) (model.ModeDecision, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if m, ok := e.overrides[Fingerprint(content)]; ok {
		return model.ModeDecision{
			Mode:       m,
			Confidence: 1.0,
			Reason:     "content override pinned this mode",
		}, true
	}
	if userID != "" {
		if m, ok := e.overrides["user:"+userID]; ok {
			return model.ModeDecision{
				Mode:       m,
				Confidence: 1.0,
				Reason:     fmt.Sprintf("default mode for user %s", userID),
			}, true
		}
	}
	return model.ModeDecision{}, false
}

func (e *Engine) thresholdDecision(score float64) model.ModeDecision {
	switch {
	case score >= e.cfg.LocalThreshold:
		return model.ModeDecision{
			Mode:                 model.ModeLocalOnly,
			Confidence:           0.95,
			SensitivityScore:     score,
			RequiresConfirmation: true,
			Reason: fmt.Sprintf("sensitivity %.2f at or above local threshold %.2f",
				score, e.cfg.LocalThreshold),
			SuggestedActions: []string{
				"process with the local model",
				"sensitive data stays inside the trust boundary",
			},
		}
	case score <= e.cfg.CloudThreshold:
		return model.ModeDecision{
			Mode:             model.ModeCloudSandbox,
			Confidence:       0.85,
			SensitivityScore: score,
			Reason: fmt.Sprintf("sensitivity %.2f at or below cloud threshold %.2f",
				score, e.cfg.CloudThreshold),
			SuggestedActions: []string{
				"cloud sandbox may process the sanitized request",
			},
		}
	default:
		return model.ModeDecision{
			Mode:                 model.ModeHybrid,
			Confidence:           0.8,
			SensitivityScore:     score,
			RequiresConfirmation: score > 0.5,
			Reason:               fmt.Sprintf("default hybrid mode (sensitivity %.2f)", score),
			SuggestedActions: []string{
				"cloud plans, local executes",
				"final output is overwritten from trusted sources",
			},
		}
	}
}
