package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/recon-armada/internal/app/orchestration"
	"github.com/ahrav/recon-armada/internal/config"
	"github.com/ahrav/recon-armada/internal/domain/scope"
	"github.com/ahrav/recon-armada/internal/infra/eventbus/memory"
)

var runCmd = &cobra.Command{
	Use:   "run <instruction>",
	Short: "Plan and execute tasks for an instruction",
	Long: `Plan tasks from a natural language instruction and execute them against the
authorized scope. Every loop iteration prints the task table; the run ends when no
task is pending or running.

Example:
  orchestrator run --domain example.com "Scan example.com for open ports and discover directories"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("rules", "", "YAML file with expansion and classifier rules")
	runCmd.Flags().StringSlice("domain", nil, "authorized domain (repeatable); overrides scope.domains")
	runCmd.Flags().StringSlice("ip-range", nil, "authorized CIDR range (repeatable); overrides scope.ip_ranges")
	runCmd.Flags().Bool("strict-hosts", false, "reject targets without a domain separator")
	runCmd.Flags().Int("max-retries", -1, "override orchestration.max_retries")
	runCmd.Flags().Bool("json", false, "print snapshots as JSON lines")
	runCmd.Flags().Bool("final-only", false, "print only the final snapshot")
	runCmd.Flags().Bool("no-publish", false, "do not publish snapshots to kafka even if enabled")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if n, _ := cmd.Flags().GetInt("max-retries"); n >= 0 {
		cfg.Orchestration.MaxRetries = n
	}

	var errCount atomic.Int64
	log := newLogger(cmd.ErrOrStderr(), cfg, &errCount)

	rulesFile, _ := cmd.Flags().GetString("rules")
	noPublish, _ := cmd.Flags().GetBool("no-publish")
	a, err := newApp(ctx, cfg, log, appOptions{rulesFile: rulesFile, kafka: !noPublish})
	if err != nil {
		return err
	}
	defer a.Close()

	sc, err := runScope(cmd, cfg)
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	finalOnly, _ := cmd.Flags().GetBool("final-only")
	r := newRenderer(cmd.OutOrStdout(), asJSON, finalOnly)

	runID := uuid.NewString()
	instruction := strings.Join(args, " ")
	log = log.With("run_id", runID)
	log.Info(ctx, "starting run", "instruction", instruction, "scope", sc.String())

	g, gctx := errgroup.WithContext(ctx)
	steps, err := a.runner.Start(gctx, sc, instruction)
	if err != nil {
		return err
	}

	bus := memory.NewBroker()
	if err := bus.SubscribeSnapshots(gctx, r.Snapshot); err != nil {
		return err
	}

	// closeQueue ends the publish queue once the stream is drained.
	closeQueue := func() {}
	if a.publisher != nil {
		toPublish := make(chan orchestration.Snapshot, 16)
		if err := bus.SubscribeSnapshots(gctx, func(snap orchestration.Snapshot) error {
			toPublish <- snap
			return nil
		}); err != nil {
			return err
		}
		g.Go(func() error {
			for snap := range toPublish {
				if err := a.publisher.Publish(gctx, runID, snap); err != nil {
					log.Warn(gctx, "snapshot not published", "iteration", snap.Iteration, "error", err)
				}
			}
			return nil
		})
		closeQueue = func() { close(toPublish) }
	}

	var last orchestration.Snapshot
	g.Go(func() error {
		defer closeQueue()
		for snap := range steps {
			last = snap
			if err := bus.PublishSnapshot(gctx, snap); err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("delivering snapshot %d: %w", snap.Iteration, err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if err := r.Summary(last, errCount.Load()); err != nil {
		return err
	}

	if last.Iteration == 0 || last.HasUnfinished() {
		return fmt.Errorf("%w: %w", orchestration.ErrRunCancelled, context.Cause(ctx))
	}
	return nil
}

// runScope builds the run scope from config, with flags taking precedence.
func runScope(cmd *cobra.Command, cfg *config.Config) (scope.Scope, error) {
	if domains, _ := cmd.Flags().GetStringSlice("domain"); len(domains) > 0 {
		cfg.Scope.Domains = domains
	}
	if ranges, _ := cmd.Flags().GetStringSlice("ip-range"); len(ranges) > 0 {
		cfg.Scope.IPRanges = ranges
	}
	if strict, _ := cmd.Flags().GetBool("strict-hosts"); strict {
		cfg.Scope.StrictHosts = true
	}
	return cfg.ScopeSettings()
}
