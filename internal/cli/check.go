package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gk0729/LobsterShell/internal/config"
	"github.com/gk0729/LobsterShell/internal/mode"
	"github.com/gk0729/LobsterShell/internal/sensitivity"
)

var checkSensitive bool

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkSensitive, "sensitive", false, "Mark the content sensitive")
}

var checkCmd = &cobra.Command{
	Use:   "check <content>",
	Short: "Score content and show where it would route (dry-run)",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	engine := mode.NewEngine(&cfg.Mode, sensitivity.NewAnalyzer(cfg.Sensitivity()))
	d := engine.Decide(args[0], "", sensitivity.Signals{UserMarkedSensitive: checkSensitive}, nil)

	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
