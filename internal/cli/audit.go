package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gk0729/LobsterShell/internal/audit"
	"github.com/gk0729/LobsterShell/internal/config"
)

var exportFormat string

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditExportCmd.Flags().StringVar(&exportFormat, "format", "json", "Export format: json or csv")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit ledger operations",
	Long:  "Commands for verifying and exporting the hash-chained audit ledger.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Loads the JSONL audit log and validates every entry's hash and linkage.\nExits 0 if intact, 1 if tampered. Defaults to the configured log path.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditVerify,
}

var auditExportCmd = &cobra.Command{
	Use:   "export [path]",
	Short: "Export the audit log as JSON or CSV",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditExport,
}

func auditPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return "", err
	}
	return cfg.AuditLogPath, nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}

	entries, err := audit.LoadSinkFile(path)
	if err != nil {
		return err
	}
	st := audit.VerifyEntries(entries)
	if st.Valid {
		fmt.Printf("OK: %d entries verified\n", st.TotalEntries)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at entry %d (%s): %s\n", st.BrokenAt, st.BrokenID, st.Reason)
	os.Exit(1)
	return nil
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}

	entries, err := audit.LoadSinkFile(path)
	if err != nil {
		return err
	}

	var data []byte
	switch exportFormat {
	case "json":
		data, err = audit.ExportJSON(entries)
	case "csv":
		data, err = audit.ExportCSV(entries)
	default:
		return fmt.Errorf("unknown export format %q", exportFormat)
	}
	if err != nil {
		return err
	}
	os.Stdout.Write(data)
	return nil
}
