package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/schedcu/core/internal/autoimport"
	"github.com/schedcu/core/internal/compliance"
	"github.com/schedcu/core/internal/config"
	"github.com/schedcu/core/internal/contingency"
	"github.com/schedcu/core/internal/importer"
	"github.com/schedcu/core/internal/kv"
	"github.com/schedcu/core/internal/scheduler"
	"github.com/schedcu/core/internal/storage"
	"github.com/schedcu/core/internal/types"
)

const (
	taskComplianceSweep  = "compliance.sweep"
	taskContingencySweep = "contingency.sweep"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduling daemon",
	Long: `Serve runs the long-lived process: the priority task scheduler, the
import drop-directory watcher, and the nightly compliance sweep. A file
lock under the data directory keeps the daemon single-instance.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	dataDir := config.GetString("data-dir")
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	// Single instance per data directory.
	lock := flock.New(filepath.Join(dataDir, "schedcore.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another schedcore instance holds %s", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	store, err := newStore(ctx)
	if err != nil {
		return err
	}

	kvStore, err := newKV(ctx)
	if err != nil {
		return err
	}

	registry := scheduler.NewRegistry()
	registerBuiltinTasks(registry, store)

	sched := scheduler.New(kvStore, registry, log, scheduler.Options{
		MaxConcurrentTasks: config.GetInt("scheduler.max-concurrent"),
	})
	if err := registerSweeps(sched); err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		sched.Run(ctx)
		return nil
	})

	if dropDir := config.GetString("import.drop-dir"); dropDir != "" {
		if err := os.MkdirAll(dropDir, 0o750); err != nil {
			return fmt.Errorf("creating drop dir: %w", err)
		}
		svc := importer.NewService(store, log, importer.Options{
			RequireExistingBlocks: config.GetBool("import.require-existing-blocks"),
			Locale:                config.GetString("locale"),
		})
		watcher, err := autoimport.New(dropDir, svc, log, autoimport.Options{
			Resolution: types.ConflictResolution(config.GetString("import.resolution")),
		})
		if err != nil {
			return err
		}
		group.Go(func() error {
			err := watcher.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
		log.WithField("dir", dropDir).Info("auto-import watcher running")
	}

	log.WithFields(logrus.Fields{
		"data_dir":       dataDir,
		"max_concurrent": config.GetInt("scheduler.max-concurrent"),
	}).Info("schedcore daemon running")

	err = group.Wait()
	if ctx.Err() != nil {
		log.Info("schedcore daemon stopped")
		return nil
	}
	return err
}

// newKV selects the scheduler's coordination backend: Redis when
// configured, otherwise in-process.
func newKV(ctx context.Context) (kv.Store, error) {
	addr := config.GetString("redis.addr")
	if addr == "" {
		return kv.NewMemory(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   config.GetInt("redis.db"),
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis %s: %w", addr, err)
	}
	return kv.NewRedis(client), nil
}

// registerBuiltinTasks installs the task functions the daemon ships
// with. Sweeps cover the four weeks ahead of their run time.
func registerBuiltinTasks(registry *scheduler.Registry, store storage.Storage) {
	registry.Register(taskComplianceSweep, func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		start := time.Now().UTC().Truncate(24 * time.Hour)
		end := start.AddDate(0, 0, 28)
		validator := compliance.New(store, logrus.NewEntry(log))
		result, err := validator.Validate(ctx, start, end, compliance.DefaultOptions())
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{
			"violations": len(result.Violations),
			"critical":   result.CriticalCount(),
			"rate":       result.ComplianceRatePercent(),
		}).Info("nightly compliance sweep finished")
		return result, nil
	})

	registry.Register(taskContingencySweep, func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		start := time.Now().UTC().Truncate(24 * time.Hour)
		end := start.AddDate(0, 0, 28)
		analyzer := contingency.New(store, logrus.NewEntry(log))
		report, err := analyzer.Analyze(ctx, start, end, contingency.Options{})
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{
			"n1_pass": report.N1Pass,
			"risk":    report.RiskLevel,
		}).Info("contingency sweep finished")
		return report, nil
	})
}

func registerSweeps(sched *scheduler.Scheduler) error {
	if err := sched.RegisterTask(types.TaskDefinition{
		TaskID:       taskComplianceSweep,
		Name:         "Nightly ACGME compliance sweep",
		FunctionPath: taskComplianceSweep,
		Priority:     types.PriorityLow,
		RequireLock:  true,
		Timeout:      10 * time.Minute,
		Retry: types.RetryConfig{
			Strategy:     types.RetryExponential,
			MaxAttempts:  3,
			InitialDelay: time.Minute,
			MaxDelay:     15 * time.Minute,
			Multiplier:   2,
		},
	}); err != nil {
		return err
	}
	if err := sched.RegisterTask(types.TaskDefinition{
		TaskID:       taskContingencySweep,
		Name:         "Weekly contingency sweep",
		FunctionPath: taskContingencySweep,
		Priority:     types.PriorityBackground,
		RequireLock:  true,
		Timeout:      10 * time.Minute,
	}); err != nil {
		return err
	}

	if err := sched.ScheduleCron(taskComplianceSweep, config.GetString("compliance.sweep-cron"), nil, nil); err != nil {
		return fmt.Errorf("scheduling compliance sweep: %w", err)
	}
	// Sunday 03:00, after the nightly sweep window.
	if err := sched.ScheduleCron(taskContingencySweep, "0 3 * * 0", nil, nil); err != nil {
		return fmt.Errorf("scheduling contingency sweep: %w", err)
	}
	return nil
}
