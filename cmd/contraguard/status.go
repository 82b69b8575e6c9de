package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"contraguard/internal/persistence"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show safety state, risk figures and open positions",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.restorePositions(ctx); err != nil {
		return err
	}

	open := a.manager.OpenPositions()

	overview := table.NewWriter()
	overview.SetOutputMirror(os.Stdout)
	overview.SetStyle(table.StyleLight)
	overview.SetTitle("contraguard %s", version)
	overview.AppendRows([]table.Row{
		{"Safety state", a.safety.State().String()},
		{"Trading enabled", a.safety.TradingEnabled(ctx)},
		{"Peak equity", fmt.Sprintf("%.2f", a.tracker.Peak())},
		{"Drawdown", fmt.Sprintf("%.2f%%", a.tracker.Drawdown())},
		{"Daily loss", fmt.Sprintf("%.2f%%", a.tracker.DailyLossPct())},
		{"Open positions", len(open)},
	})

	if a.repos.Trades != nil {
		now := time.Now().UTC()
		pnl, err := a.repos.Trades.RealizedPnL(ctx, persistence.TimeRange{From: now.AddDate(0, 0, -30), To: now})
		if err != nil {
			return fmt.Errorf("realized pnl: %w", err)
		}
		overview.AppendRow(table.Row{"Realized P&L (30d)", fmt.Sprintf("%.2f", pnl)})
	}
	overview.Render()

	if len(open) == 0 {
		return nil
	}

	positions := table.NewWriter()
	positions.SetOutputMirror(os.Stdout)
	positions.SetStyle(table.StyleLight)
	positions.AppendHeader(table.Row{"Asset", "Side", "Size", "Avg Entry", "Stop", "Take Profit", "Opened"})
	for _, p := range open {
		record := p.ToRecord()
		positions.AppendRow(table.Row{
			record.Asset,
			record.Side,
			fmt.Sprintf("%.6f", record.Size),
			fmt.Sprintf("%.2f", record.AvgEntry),
			fmt.Sprintf("%.2f", record.StopLoss),
			fmt.Sprintf("%.2f", record.TakeProfit),
			record.EntryTime.Format(time.RFC3339),
		})
	}
	positions.Render()
	return nil
}
