package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gk0729/LobsterShell/internal/approval"
	"github.com/gk0729/LobsterShell/internal/config"
)

func init() {
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(denyCmd)
}

func ticketStore() (*approval.Store, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return approval.NewStore(cfg.PendingDir)
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List requests awaiting confirmation",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := ticketStore()
		if err != nil {
			return err
		}
		tickets, err := store.Pending()
		if err != nil {
			return err
		}
		if len(tickets) == 0 {
			fmt.Println("no pending requests")
			return nil
		}
		for _, t := range tickets {
			fmt.Printf("%s  user=%s  mode=%s  score=%.2f  %s\n",
				t.Key, t.UserID, t.Mode, t.SensitivityScore, t.Reason)
		}
		return nil
	},
}

var confirmCmd = &cobra.Command{
	Use:   "confirm <key>",
	Short: "Confirm a paused request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := ticketStore()
		if err != nil {
			return err
		}
		if err := store.Confirm(args[0]); err != nil {
			return err
		}
		fmt.Printf("confirmed: %s\n", args[0])
		return nil
	},
}

var denyCmd = &cobra.Command{
	Use:   "deny <key>",
	Short: "Deny a paused request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := ticketStore()
		if err != nil {
			return err
		}
		if err := store.Deny(args[0]); err != nil {
			return err
		}
		fmt.Printf("denied: %s\n", args[0])
		return nil
	},
}
