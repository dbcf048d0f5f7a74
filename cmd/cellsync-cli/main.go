// Command cellsync-cli is the operator-facing client for a running cellsync
// reconciler process: it talks to the HTTP control surface (spec §6) rather
// than mounting anything locally. Grounded on gazette-core's cmd/gazctl
// cobra command tree (rootCmd parenting subcommands, each subcommand
// calling a small lazily-built client), restyled around cellsync's five
// HTTP routes in place of gazctl's broker RPCs.
package main

import (
	"fmt"
	"os"

	"github.com/cellsync/reconciler/internal/cliclient"
	"github.com/spf13/cobra"
)

var addr string

var rootCmd = &cobra.Command{
	Use:   "cellsync-cli",
	Short: "cellsync-cli controls a running cellsync reconciler over its HTTP API",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "reconciler HTTP address")
	rootCmd.AddCommand(statusCmd, forceSyncCmd, cachedSnapshotCmd, editCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "print the reconciler's current status (remote/store online, pending counts)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cliclient.New(addr).PrintStatus(cmd.Context())
	},
}

var forceSyncCmd = &cobra.Command{
	Use:   "force-sync",
	Short: "request an immediate outbound synchronization pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cliclient.New(addr).ForceSync(cmd.Context())
	},
}

var cachedSnapshotCmd = &cobra.Command{
	Use:   "cached-snapshot",
	Short: "print the reconciler's last-known cached snapshot status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cliclient.New(addr).PrintCachedSnapshot(cmd.Context())
	},
}

var editRow int
var editCol, editSheetID, editJobID, editValue string

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "submit a single cell edit through the ingress job queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cliclient.New(addr).SubmitEdit(cmd.Context(), editJobID, editRow, editCol, editSheetID, editValue)
	},
}

func init() {
	editCmd.Flags().StringVar(&editJobID, "job-id", "", "unique job id for this edit")
	editCmd.Flags().IntVar(&editRow, "row", 0, "1-indexed row number")
	editCmd.Flags().StringVar(&editCol, "col", "", "column letter, e.g. A")
	editCmd.Flags().StringVar(&editSheetID, "sheet-id", "", "sheet id the edit targets")
	editCmd.Flags().StringVar(&editValue, "value", "", "cell value")
	editCmd.MarkFlagRequired("job-id")
	editCmd.MarkFlagRequired("row")
	editCmd.MarkFlagRequired("col")
	editCmd.MarkFlagRequired("sheet-id")
}
