package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gk0729/LobsterShell/internal/config"
	lobstermcp "github.com/gk0729/LobsterShell/internal/mcp"
)

var mcpWatch bool

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().BoolVar(&mcpWatch, "watch", true, "Hot-reload when the governance config changes")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP governance server for agent integration",
	Long:  "Runs lobstershell as an MCP (Model Context Protocol) server over stdio.\nExposes governance tools: govern, check, confirm, pending, audit_verify.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	srv, err := lobstermcp.New(lobstermcp.Config{ConfigPath: configPath})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	if mcpWatch {
		watchPath := configPath
		if watchPath == "" {
			watchPath = config.DefaultPath()
		}
		reloader, err := lobstermcp.NewReloader(srv, []string{watchPath})
		if err != nil {
			fmt.Fprintf(os.Stderr, "config watch disabled: %v\n", err)
		} else {
			go reloader.Run(ctx)
		}
	}

	fmt.Fprintln(os.Stderr, "lobstershell MCP server running on stdio")
	return srv.Run(ctx)
}
