// Package pipeline assembles the governance components from one
// configuration, the way both the CLI and the MCP server consume them.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/gk0729/LobsterShell/internal/approval"
	"github.com/gk0729/LobsterShell/internal/audit"
	"github.com/gk0729/LobsterShell/internal/config"
	"github.com/gk0729/LobsterShell/internal/gate"
	"github.com/gk0729/LobsterShell/internal/mode"
	"github.com/gk0729/LobsterShell/internal/model"
	"github.com/gk0729/LobsterShell/internal/orchestrator"
	"github.com/gk0729/LobsterShell/internal/overwrite"
	"github.com/gk0729/LobsterShell/internal/sensitivity"
	"github.com/gk0729/LobsterShell/internal/tool"
)

// Pipeline bundles one assembled governance stack.
type Pipeline struct {
	Config     *config.GovernanceConfig
	ConfigHash string

	Engine     *mode.Engine
	Chain      *audit.Chain
	Sink       *audit.FileSink
	Tickets    *approval.Store
	Registry   *tool.Registry
	Loader     *tool.Loader
	Tools      *tool.Executor
	Overwriter *overwrite.Overwriter
	SQLRunner  *overwrite.SQLRunner
	Orch       *orchestrator.Orchestrator
}

// Options tweak assembly for callers that bring their own pieces.
type Options struct {
	// ConfigPath locates the governance file; empty uses the default.
	ConfigPath string
	// NoSink keeps the audit chain purely in memory.
	NoSink bool
	// PendingDir overrides the ticket directory from the config.
	PendingDir string
}

// New builds a Pipeline from the governance config.
func New(opts Options) (*Pipeline, error) {
	cfg, hash, err := config.LoadConfigWithHash(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{Config: cfg, ConfigHash: hash}

	if opts.NoSink {
		p.Chain = audit.NewChain(nil)
	} else {
		sink, err := audit.OpenFileSink(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("pipeline: audit sink: %w", err)
		}
		p.Sink = sink
		p.Chain = audit.NewChain(sink)
	}

	pendingDir := cfg.PendingDir
	if opts.PendingDir != "" {
		pendingDir = opts.PendingDir
	}
	p.Tickets, err = approval.NewStore(pendingDir)
	if err != nil {
		return nil, fmt.Errorf("pipeline: ticket store: %w", err)
	}

	analyzer := sensitivity.NewAnalyzer(cfg.Sensitivity())
	p.Engine = mode.NewEngine(&cfg.Mode, analyzer)
	g := gate.New(&cfg.Gate)

	p.Registry = tool.NewRegistry()
	p.Loader = tool.NewLoader(p.Registry, cfg.Tools.Available, os.Stderr)
	p.loadPackages(cfg.Tools.PackagesDir)
	toolOpts := []tool.ExecutorOption{
		tool.WithAudit(func(id string, call tool.CallContext, res tool.Result) {
			p.Chain.Append(audit.Record{
				EventType:   audit.EventToolCall,
				Action:      id,
				Description: res.Error,
				UserID:      call.UserID,
				SessionID:   call.SessionID,
				RequestID:   call.RequestID,
				Failed:      !res.Success,
			})
		}),
	}
	if cfg.Tools.Timeout > 0 {
		toolOpts = append(toolOpts, tool.WithTimeout(cfg.Tools.Timeout))
	}
	p.Tools = tool.NewExecutor(p.Registry, toolOpts...)

	p.Overwriter = overwrite.New()
	p.SQLRunner = overwrite.NewSQLRunner(cfg.Overwrite.SQLDriver)
	p.Overwriter.RegisterRunner(overwrite.SourceSQL, p.SQLRunner)
	for i := range cfg.Overwrite.Sources {
		p.Overwriter.AddSource(cfg.Overwrite.Sources[i].DataSource())
	}
	for i := range cfg.Overwrite.Rules {
		r := cfg.Overwrite.Rules[i]
		if err := p.Overwriter.AddRule(&r); err != nil {
			return nil, fmt.Errorf("pipeline: overwrite rule %q: %w", r.Placeholder, err)
		}
	}

	p.Orch = orchestrator.New(p.Engine, g, p.Chain, p.Tickets, p.Overwriter,
		orchestrator.WithToolWhitelist(p.Registry.IDs))

	return p, nil
}

// loadPackages loads every tool package found under dir. A missing
// directory means no packages are installed; load failures are warned
// on stderr rather than failing assembly.
func (p *Pipeline) loadPackages(dir string) {
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	fetcher := tool.DirFetcher{Dir: dir}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		res, err := p.Loader.LoadFromPackage(fetcher, e.Name())
		if err != nil {
			fmt.Fprintf(os.Stderr, "pipeline: package %s: %v\n", e.Name(), err)
			continue
		}
		for _, o := range res.Outcomes {
			if !o.Loaded {
				fmt.Fprintf(os.Stderr, "pipeline: tool %s: %s\n", o.ToolID, o.Error)
			}
		}
	}
}

// RegisterExecutor exposes executor registration on the bundle.
func (p *Pipeline) RegisterExecutor(m model.ExecutionMode, e orchestrator.Executor) {
	p.Orch.RegisterExecutor(m, e)
}

// Process forwards to the orchestrator.
func (p *Pipeline) Process(ctx context.Context, req *orchestrator.Request) *orchestrator.Outcome {
	return p.Orch.Process(ctx, req)
}

// Close releases file-backed resources.
func (p *Pipeline) Close() error {
	var first error
	if p.SQLRunner != nil {
		first = p.SQLRunner.Close()
	}
	if p.Sink != nil {
		if err := p.Sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
