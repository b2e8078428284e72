// Command brewsyncd runs the BrewSync replication engine as a daemon:
// it opens the local store, connects to the cloud backend and keeps the
// two converged until terminated.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/brewkit/brewsync/internal/config"
	"github.com/brewkit/brewsync/internal/logging"
	"github.com/brewkit/brewsync/internal/models"
	"github.com/brewkit/brewsync/internal/remote"
	"github.com/brewkit/brewsync/internal/store"
	syncpkg "github.com/brewkit/brewsync/internal/sync"
	"github.com/brewkit/brewsync/internal/sync/scheduler"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	logging.Info("BrewSync engine starting", map[string]interface{}{
		"version": Version,
	})

	cfg, err := config.Load()
	if err != nil {
		logging.Error("Failed to load configuration", err, nil)
		os.Exit(1)
	}

	s, err := store.Open(cfg.DataDir)
	if err != nil {
		logging.Error("Failed to open local store", err, nil)
		os.Exit(1)
	}
	defer s.Close()

	backend, err := remote.OpenPostgres(cfg.Remote.PostgresDSN, cfg.TenantID)
	if err != nil {
		logging.Error("Failed to connect to cloud store", err, nil)
		os.Exit(1)
	}

	tables := append(models.ContentTables(), models.TableSettings)
	newFeed := func() remote.FeedSource {
		return remote.NewWSFeed(cfg.Remote.FeedURL, cfg.TenantID, tables)
	}

	coord := syncpkg.NewCoordinator(cfg.Sync, s, backend, newFeed)
	go consumeEvents(coord)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := coord.Connect(ctx); err != nil {
		logging.Error("Initial connect failed, will retry in background", err, nil)
		coord.SetOnline(true)
	}

	sched := scheduler.New(coord, &scheduler.Config{
		SyncInterval:  cfg.Sync.SyncInterval,
		QueueInterval: scheduler.DefaultConfig().QueueInterval,
	})
	sched.Start(ctx)

	<-ctx.Done()

	logging.Info("Shutting down", nil)
	sched.Stop()
	coord.Disconnect()
}

// consumeEvents logs engine notifications. An embedding application
// would forward these to its UI layer instead.
func consumeEvents(coord *syncpkg.Coordinator) {
	for ev := range coord.Events() {
		switch e := ev.(type) {
		case syncpkg.StateChanged:
			logging.Info("Sync state changed", map[string]interface{}{
				"from": string(e.Old),
				"to":   string(e.New),
			})
		case syncpkg.SyncCompleted:
			// The reconcile manager already logs the summary.
		case syncpkg.TableError:
			logging.Warn("Table failed to sync", map[string]interface{}{
				"table":   string(e.Table),
				"primary": e.Primary,
				"error":   e.Err.Error(),
			})
		case syncpkg.QueueWarning:
			logging.Warn("Offline change could not be synced and was dropped", map[string]interface{}{
				"table":     e.Op.Table,
				"record_id": e.Op.RecordID,
				"op_type":   e.Op.OpType,
			})
		}
	}
}
