package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marketfleet/supervisor/internal/clock"
	"github.com/marketfleet/supervisor/internal/fleet"
	"github.com/marketfleet/supervisor/internal/pidfile"
)

func newRunCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the fleet supervisor (blocks until interrupted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupervisor(force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "kill any existing supervisor instance bound to this out/ directory and take over")
	return cmd
}

func runSupervisor(force bool) error {
	pf := pidfile.New(filepath.Join(outDir, "fleetd.pid"))
	if err := pf.Acquire(); err != nil {
		if !force {
			return fmt.Errorf("%w (use --force to kill the existing instance)", err)
		}
		if err := pf.KillExisting(); err != nil {
			return fmt.Errorf("kill existing instance: %w", err)
		}
		if err := pf.Acquire(); err != nil {
			return fmt.Errorf("acquire pid file after killing existing instance: %w", err)
		}
	}
	defer pf.Release()

	b, err := newBootstrap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b.log.Info().Msg("starting fleet supervisor")
	sup := fleet.NewSupervisor(b.cfgMgr, b.api, clock.NewReal(), b.log, outDir)
	if err := sup.Run(ctx); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	b.log.Info().Msg("supervisor stopped")
	return nil
}
