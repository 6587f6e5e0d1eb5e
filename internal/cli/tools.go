package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gk0729/LobsterShell/internal/config"
	"github.com/gk0729/LobsterShell/internal/pipeline"
	"github.com/gk0729/LobsterShell/internal/tool"
)

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsValidateCmd)
	toolsCmd.AddCommand(toolsListCmd)
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Tool package operations",
}

var toolsValidateCmd = &cobra.Command{
	Use:   "validate <manifest>",
	Short: "Validate a tool package manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := tool.LoadManifestFile(args[0])
		if err != nil {
			return err
		}
		if err := m.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("OK: %s %s (%d tools)\n", m.PackageName, m.Version, len(m.Tools))
		for _, t := range m.Tools {
			fmt.Printf("  %s  %s  perms=%v\n", t.ID, t.Locator(), t.Permissions)
		}
		return nil
	},
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tools loaded from the configured packages directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		p, err := pipeline.New(pipeline.Options{ConfigPath: configPath, NoSink: true})
		if err != nil {
			return err
		}
		defer p.Close()

		infos := p.Registry.List()
		if len(infos) == 0 {
			fmt.Printf("no tools loaded from %s\n", cfg.Tools.PackagesDir)
			return nil
		}
		for _, info := range infos {
			fmt.Printf("%s  %s %s  [%s]  perms=%v\n",
				info.ID, info.Name, info.Version, info.Category, info.Permissions)
		}
		return nil
	},
}
