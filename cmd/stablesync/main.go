// Command stablesync runs the offline-first sync engine: a local SQLite
// store with a durable mutation queue, a push/pull orchestrator against
// the hosted API, and a background retry scheduler.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stablebook/stablesync/internal/config"
	"github.com/stablebook/stablesync/internal/db"
	"github.com/stablebook/stablesync/internal/logging"
	"github.com/stablebook/stablesync/internal/netcheck"
	"github.com/stablebook/stablesync/internal/remote/rest"
	syncpkg "github.com/stablebook/stablesync/internal/sync"
	"github.com/stablebook/stablesync/internal/sync/queue"
	"github.com/stablebook/stablesync/internal/sync/scheduler"
)

type rootOptions struct {
	ConfigPath string
	Verbose    bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "stablesync",
		Short:         "Offline-first sync engine for StableBook",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			level := logging.LevelInfo
			if opts.Verbose {
				level = logging.LevelDebug
			}
			logging.Init(os.Stderr, level)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config file (YAML)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newQueueCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))

	return cmd
}

// openStore opens the local database, applies pending migrations and
// builds the repository and queue over it.
func openStore(cfg *config.Config) (*db.DB, *db.Repository, *queue.MutationQueue, error) {
	conn, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.NewMigrator(conn.DB).Up(); err != nil {
		conn.Close()
		return nil, nil, nil, err
	}
	repo := db.NewRepository(conn.DB)
	return conn, repo, queue.NewMutationQueue(repo), nil
}

func buildOrchestrator(cfg *config.Config, repo *db.Repository, q *queue.MutationQueue) *syncpkg.Orchestrator {
	remotes := rest.NewClient(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout.Std()).Remotes()
	o := syncpkg.NewOrchestrator(repo, q, syncpkg.StaticSession(cfg.UserID), remotes)
	o.SetBatchLimit(cfg.Sync.BatchLimit)
	return o
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the background sync engine and status endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}

			conn, repo, q, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			defer repo.Close()

			orchestrator := buildOrchestrator(cfg, repo, q)
			monitor := netcheck.NewMonitor(cfg.API.ProbeAddr, cfg.API.Timeout.Std())
			sched := scheduler.NewScheduler(orchestrator, monitor, nil, scheduler.Config{
				Interval:       cfg.Sync.Interval.Std(),
				Flex:           cfg.Sync.Flex.Std(),
				BackoffBase:    cfg.Sync.BackoffBase.Std(),
				MaxAttempts:    cfg.Sync.MaxAttempts,
				OfflineRecheck: 30 * time.Second,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			hub := NewWSHub()
			bridgeStatusEvents(ctx, hub, sched, q)

			mux := http.NewServeMux()
			mux.HandleFunc("/ws", HandleWebSocket(hub))
			server := &http.Server{Addr: cfg.Serve.ListenAddr, Handler: mux}
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logging.Error("Status endpoint failed", err, nil)
				}
			}()

			sched.Start(ctx)
			// Converge promptly on startup rather than waiting a full interval.
			sched.TriggerSync()

			logging.Info("Sync engine running", map[string]interface{}{
				"listen_addr": cfg.Serve.ListenAddr,
				"data_dir":    cfg.DataDir,
			})

			<-ctx.Done()

			sched.Stop()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
			return nil
		},
	}
}

// bridgeStatusEvents forwards scheduler state and queue depth changes to
// the WebSocket hub until the context ends.
func bridgeStatusEvents(ctx context.Context, hub *WSHub, sched *scheduler.Scheduler, q *queue.MutationQueue) {
	states, cancelStates := sched.ObserveState()
	counts, cancelCounts := q.ObservePendingCount()

	go func() {
		defer cancelStates()
		defer cancelCounts()
		for {
			select {
			case <-ctx.Done():
				return
			case state := <-states:
				hub.BroadcastSyncStatus(string(state))
				if state == scheduler.StateIdle {
					if last, result := sched.LastSync(); !last.IsZero() && result != nil {
						hub.BroadcastSyncResult(result.Pushed, result.Pulled, result.Skipped, result.Duration)
					}
				}
			case count := <-counts:
				hub.BroadcastQueuePending(count)
			}
		}
	}()
}

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one push/pull cycle and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}

			conn, repo, q, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			defer repo.Close()

			result, err := buildOrchestrator(cfg, repo, q).PerformSync(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("pushed %d, pulled %d, skipped %d in %s\n",
				result.Pushed, result.Pulled, result.Skipped, result.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func newQueueCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Print mutation queue statistics",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}

			conn, repo, q, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			defer repo.Close()

			stats, err := q.Stats()
			if err != nil {
				return err
			}
			pending, err := q.GetPendingCount()
			if err != nil {
				return err
			}

			fmt.Printf("pending (incl. failed): %d\n", pending)
			for _, status := range []string{"pending", "failed", "completed"} {
				fmt.Printf("%-10s %d\n", status, stats[status])
			}
			return nil
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}

			conn, err := db.Open(cfg.DataDir)
			if err != nil {
				return err
			}
			defer conn.Close()

			migrator := db.NewMigrator(conn.DB)
			if err := migrator.Up(); err != nil {
				return err
			}
			version, err := migrator.CurrentVersion()
			if err != nil {
				return err
			}
			fmt.Printf("schema at version %d\n", version)
			return nil
		},
	}
}
