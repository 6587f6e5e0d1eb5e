package pipeline

import (
	"context"
	"fmt"

	"github.com/gk0729/LobsterShell/internal/model"
	"github.com/gk0729/LobsterShell/internal/orchestrator"
)

// EchoExecutor is the built-in stand-in executor: it answers with the
// request content prefixed by where it ran. Real deployments register
// model-backed executors instead.
type EchoExecutor struct {
	Label string
}

func (e *EchoExecutor) Name() string { return e.Label }

func (e *EchoExecutor) Execute(ctx context.Context, ec *orchestrator.ExecutionContext) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return fmt.Sprintf("[%s] %s", e.Label, ec.Request.Content), nil
}

// RegisterEchoExecutors installs an EchoExecutor for every mode, so a
// fresh install can run end to end before real executors exist.
func (p *Pipeline) RegisterEchoExecutors() {
	for _, m := range []model.ExecutionMode{model.ModeLocalOnly, model.ModeHybrid, model.ModeCloudSandbox} {
		p.RegisterExecutor(m, &EchoExecutor{Label: string(m)})
	}
}
