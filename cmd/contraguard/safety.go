package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"contraguard/internal/cache"
	"contraguard/internal/safety"
)

// withSwitch wires the redis-backed safety switch for the manual state
// commands that do not need the full decision core.
func withSwitch(cmd *cobra.Command, fn func(ctx context.Context, sw *safety.Switch) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	c, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer c.Close()

	sw := safety.NewSwitch(ctx, cfg.Safety, c.SafetyStore(), nil)
	if err := fn(ctx, sw); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "safety switch: %s\n", sw.State())
	return nil
}

func newPauseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause trading (blocks new entries, keeps open positions)",
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			return withSwitch(cmd, func(ctx context.Context, sw *safety.Switch) error {
				return sw.Pause(ctx, reason)
			})
		},
	}
	cmd.Flags().String("reason", "manual pause", "Reason recorded with the transition")
	return cmd
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume trading from a pause",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSwitch(cmd, func(ctx context.Context, sw *safety.Switch) error {
				return sw.Resume(ctx)
			})
		},
	}
}

func newResumeEmergencyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume-emergency",
		Short: "Clear an emergency stop (lands on paused, not active)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSwitch(cmd, func(ctx context.Context, sw *safety.Switch) error {
				return sw.ClearEmergency(ctx)
			})
		},
	}
}

// newEmergencyCmd builds the full decision core so the emergency can
// liquidate the persisted book, not just flip the switch.
func newEmergencyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emergency",
		Short: "Force an emergency stop and liquidate all open positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			if strings.TrimSpace(reason) == "" {
				return fmt.Errorf("a non-empty --reason is required for an emergency stop")
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

			err = a.safety.Emergency(ctx, reason)
			a.persistPositions(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "safety switch: %s\n", a.safety.State())
			return nil
		},
	}
	cmd.Flags().String("reason", "", "Reason recorded with the emergency stop (required)")
	return cmd
}
