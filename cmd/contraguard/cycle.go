package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"contraguard/internal/confirm"
	"contraguard/internal/engine"
	"contraguard/internal/market"
)

// cycleInput is the JSON shape accepted by the cycle command. Candle and
// sentiment collection is an external collaborator; this file is its
// hand-off format.
type cycleInput struct {
	Asset             string                     `json:"asset"`
	Intraday          []market.Candle            `json:"intraday"`
	Daily             []market.Candle            `json:"daily"`
	Sentiment         confirm.SentimentRecord    `json:"sentiment"`
	Vision            confirm.VisionRecord       `json:"vision"`
	TechnicalStrength float64                    `json:"technical_strength"`
	PortfolioValue    float64                    `json:"portfolio_value"`
	AccountBalance    float64                    `json:"account_balance"`
	Exposures         map[string]float64         `json:"exposures"`
	Histories         map[string][]market.Candle `json:"histories"`
}

func newCycleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run one decision cycle from a market data file",
		Long:  "Reads a cycle input JSON file, runs the full decision pipeline for its asset and prints the final decision.",
		RunE:  runCycle,
	}
	cmd.Flags().String("input", "", "Path to the cycle input JSON file (required)")
	cmd.MarkFlagRequired("input")
	return cmd
}

func runCycle(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("input")
	inputs, err := readCycleInput(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.restorePositions(ctx); err != nil {
		return err
	}

	decision, err := a.engine.RunCycle(ctx, inputs)
	a.persistPositions(ctx)
	if decision != nil {
		out, marshalErr := json.MarshalIndent(decision, "", "  ")
		if marshalErr != nil {
			return marshalErr
		}
		fmt.Fprintln(os.Stdout, string(out))
	}
	return err
}

func readCycleInput(path string) (engine.CycleInputs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.CycleInputs{}, fmt.Errorf("failed to read cycle input: %w", err)
	}

	var in cycleInput
	if err := json.Unmarshal(data, &in); err != nil {
		return engine.CycleInputs{}, fmt.Errorf("failed to parse cycle input: %w", err)
	}

	intraday, err := market.NewSeries(in.Intraday)
	if err != nil {
		return engine.CycleInputs{}, fmt.Errorf("intraday series: %w", err)
	}
	daily, err := market.NewSeries(in.Daily)
	if err != nil {
		return engine.CycleInputs{}, fmt.Errorf("daily series: %w", err)
	}

	histories := make(map[string]market.Series, len(in.Histories))
	for asset, candles := range in.Histories {
		series, err := market.NewSeries(candles)
		if err != nil {
			return engine.CycleInputs{}, fmt.Errorf("history series for %s: %w", asset, err)
		}
		histories[asset] = series
	}

	return engine.CycleInputs{
		Asset:             in.Asset,
		Intraday:          intraday,
		Daily:             daily,
		Sentiment:         in.Sentiment,
		Vision:            in.Vision,
		TechnicalStrength: in.TechnicalStrength,
		PortfolioValue:    in.PortfolioValue,
		AccountBalance:    in.AccountBalance,
		Exposures:         in.Exposures,
		Histories:         histories,
		Now:               time.Now().UTC(),
	}, nil
}
