package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
	"github.com/ducminhle1904/crypto-paper-risk/internal/persistence"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect persisted paper account states",
}

var stateShowCmd = &cobra.Command{
	Use:   "show <account-id>",
	Short: "Restore an account and print its balance and open positions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, log, err := loadEnvironment()
		if err != nil {
			return err
		}
		defer log.Close()

		store, err := openStore(cmd.Context(), app, log)
		if err != nil {
			return err
		}
		account, err := persistence.Restore(cmd.Context(), store, args[0], log)
		if errors.Is(err, persistence.ErrNotFound) {
			return fmt.Errorf("no saved state for %q", args[0])
		}
		if err != nil {
			return err
		}
		renderAccount(cmd.OutOrStdout(), account.Snapshot())
		return nil
	},
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List account states in the snapshot directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, log, err := loadEnvironment()
		if err != nil {
			return err
		}
		defer log.Close()

		store, err := persistence.NewFileStore(app.Storage.SnapshotDir, log)
		if err != nil {
			return err
		}
		ids, err := store.List()
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var stateDeleteCmd = &cobra.Command{
	Use:   "delete <account-id>",
	Short: "Delete a persisted account state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, log, err := loadEnvironment()
		if err != nil {
			return err
		}
		defer log.Close()

		store, err := openStore(cmd.Context(), app, log)
		if err != nil {
			return err
		}
		return store.Delete(cmd.Context(), args[0])
	},
}

func init() {
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateDeleteCmd)
}

// renderAccount prints a balance table followed by the open positions
func renderAccount(w io.Writer, snap paper.Snapshot) {
	if w == nil {
		w = os.Stdout
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("ACCOUNT %s", snap.AccountID))
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"Cash", fmt.Sprintf("$%.2f", snap.Balance.Cash)},
		{"Locked", fmt.Sprintf("$%.2f", snap.Balance.Locked)},
		{"Reserved", fmt.Sprintf("$%.2f", snap.Balance.Reserved)},
		{"Available", fmt.Sprintf("$%.2f", snap.Balance.Available)},
		{"Equity", fmt.Sprintf("$%.2f", snap.Balance.Equity)},
		{"Realized P&L", fmt.Sprintf("$%.2f", snap.Balance.RealizedPnL)},
		{"Unrealized P&L", fmt.Sprintf("$%.2f", snap.Balance.UnrealizedPnL)},
		{"Drawdown", fmt.Sprintf("%.2f%%", snap.Balance.Drawdown*100)},
		{"Pending Orders", snap.PendingOrders},
		{"Trades", snap.TradeCount},
	})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Align: text.AlignLeft}})
	t.Render()

	if len(snap.Positions) == 0 {
		return
	}
	positions := append([]paper.Position(nil), snap.Positions...)
	sort.Slice(positions, func(i, j int) bool { return positions[i].OpenedAt.Before(positions[j].OpenedAt) })

	pt := table.NewWriter()
	pt.SetOutputMirror(w)
	pt.SetTitle("OPEN POSITIONS")
	pt.SetStyle(table.StyleRounded)
	pt.AppendHeader(table.Row{"ID", "Symbol", "Side", "Quantity", "Entry", "Stop", "Unrealized"})
	for _, p := range positions {
		pt.AppendRow(table.Row{
			p.ID, p.Symbol, p.Side,
			fmt.Sprintf("%.6f", p.RemainingQuantity),
			fmt.Sprintf("%.4f", p.EntryPrice),
			fmt.Sprintf("%.4f", p.StopLoss),
			fmt.Sprintf("$%.2f", p.UnrealizedPnL),
		})
	}
	pt.Render()
}
