package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/555Russich/18.fl-auto-response/internal/config"
	"github.com/555Russich/18.fl-auto-response/internal/observability"
	"github.com/555Russich/18.fl-auto-response/internal/store"
	"github.com/555Russich/18.fl-auto-response/internal/types"
)

var seenCommand = &cobra.Command{
	Use:   "seen",
	Short: "Inspect or mark processed order ids",
}

var seenHasCommand = &cobra.Command{
	Use:   "has <id>",
	Short: "Report whether an order id was already processed",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeenHasCmd,
}

var seenAddCommand = &cobra.Command{
	Use:   "add <id>",
	Short: "Mark an order id as processed so the responder never touches it",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeenAddCmd,
}

var seenStore string

func init() {
	seenCommand.PersistentFlags().StringVar(&seenStore, "store", config.Defaults().Store, "Record store DSN")

	seenCommand.AddCommand(seenHasCommand, seenAddCommand)
	rootCmd.AddCommand(seenCommand)
}

func runSeenHasCmd(cmd *cobra.Command, args []string) error {
	st, err := store.Open(cmd.Context(), seenStore)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer func() { _ = st.Close() }()

	seen, err := st.Has(cmd.Context(), types.RecordID(args[0]))
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintSeen(args[0], seen)
	return nil
}

func runSeenAddCmd(cmd *cobra.Command, args []string) error {
	st, err := store.Open(cmd.Context(), seenStore)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.Add(cmd.Context(), types.RecordID(args[0])); err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintSeen(args[0], true)
	return nil
}
