package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gk0729/LobsterShell/internal/model"
	"github.com/gk0729/LobsterShell/internal/orchestrator"
	"github.com/gk0729/LobsterShell/internal/pipeline"
	"github.com/gk0729/LobsterShell/internal/sensitivity"
)

var (
	runUser        string
	runSession     string
	runToken       string
	runSensitive   bool
	runConfirmed   string
	runPermissions []string
	runContextKV   []string
	runJSON        bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runUser, "user", "", "Caller identity")
	runCmd.Flags().StringVar(&runSession, "session", "", "Session id for the audit trail")
	runCmd.Flags().StringVar(&runToken, "token", "", "Caller credential")
	runCmd.Flags().BoolVar(&runSensitive, "sensitive", false, "Mark the content sensitive")
	runCmd.Flags().StringVar(&runConfirmed, "confirmed", "", "Resume a paused request by its confirmation key")
	runCmd.Flags().StringSliceVar(&runPermissions, "grant", nil, "Granted permissions (e.g. network:external)")
	runCmd.Flags().StringSliceVar(&runContextKV, "set", nil, "Context values for placeholder resolution (key=value)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the full outcome as JSON")
}

var runCmd = &cobra.Command{
	Use:   "run <content>",
	Short: "Run a request through the governance pipeline",
	Long:  "Scores the content, routes it to an execution mode, gates it, executes,\nand overwrites placeholders. A request that needs confirmation prints its\nkey; confirm it and rerun with --confirmed <key>.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	p, err := pipeline.New(pipeline.Options{ConfigPath: configPath})
	if err != nil {
		return err
	}
	defer p.Close()
	p.RegisterEchoExecutors()

	req := &orchestrator.Request{
		UserID:        runUser,
		SessionID:     runSession,
		AuthToken:     runToken,
		Content:       args[0],
		Signals:       sensitivity.Signals{UserMarkedSensitive: runSensitive},
		ContextValues: parseKV(runContextKV),
	}
	for _, g := range runPermissions {
		if perm, ok := model.ParsePermission(g); ok {
			req.GrantedPermissions = append(req.GrantedPermissions, perm)
		} else {
			fmt.Fprintf(os.Stderr, "ignoring unknown permission %q\n", g)
		}
	}
	if runConfirmed != "" {
		req.RequestID = runConfirmed
		req.Confirmed = true
	}

	out := p.Process(context.Background(), req)

	if runJSON {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		renderOutcome(out)
	}

	switch out.Status {
	case orchestrator.StatusCompleted, orchestrator.StatusPendingConfirmation:
		return nil
	default:
		os.Exit(1)
		return nil
	}
}

func renderOutcome(out *orchestrator.Outcome) {
	fmt.Printf("request:  %s\n", out.RequestID)
	fmt.Printf("status:   %s\n", out.Status)
	fmt.Printf("mode:     %s (score %.2f, confidence %.2f)\n",
		out.Decision.Mode, out.Decision.SensitivityScore, out.Decision.Confidence)
	if out.Decision.Reason != "" {
		fmt.Printf("reason:   %s\n", out.Decision.Reason)
	}
	if len(out.Tags) > 0 {
		fmt.Printf("tags:     %s\n", strings.Join(out.Tags, ", "))
	}
	switch out.Status {
	case orchestrator.StatusPendingConfirmation:
		fmt.Printf("\nawaiting confirmation; resume with:\n  lobster confirm %s\n  lobster run --confirmed %s ...\n",
			out.ConfirmationKey, out.ConfirmationKey)
	case orchestrator.StatusCompleted:
		fmt.Printf("\n%s\n", out.Output)
	default:
		fmt.Fprintf(os.Stderr, "\nerror: %s\n", out.Error)
	}
}

func parseKV(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if k, v, ok := strings.Cut(p, "="); ok {
			out[k] = v
		}
	}
	return out
}
