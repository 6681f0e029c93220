// Package engine wires the storage stack — disk manager, scheduler,
// buffer pool, catalog, and transaction manager — into a single
// composition root.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrel-db/kestrel/buffer"
	"github.com/kestrel-db/kestrel/catalog"
	"github.com/kestrel-db/kestrel/diskio"
	"github.com/kestrel-db/kestrel/txn"
)

// StorageEngine owns every long-lived subsystem and its background GC
// loop. Grounded on storage_engine.go's StorageEngine, generalized from
// a single open-B+Tree map to the catalog/txn-manager pair this design
// needs.
type StorageEngine struct {
	cfg Config

	disk      *diskio.DirectIODiskManager
	scheduler *diskio.Scheduler
	pool      *buffer.Manager
	catalog   *catalog.Catalog
	txnMgr    *txn.Manager

	gcCancel context.CancelFunc
	gcGroup  *errgroup.Group
}

// Open creates or attaches to the data file named by cfg.DataFile and
// starts the background GC loop. isNewDatabase is useful for callers
// that need to bootstrap an empty catalog on first run.
func Open(cfg Config) (engine *StorageEngine, isNewDatabase bool, err error) {
	isNewDatabase = !dataFileExists(cfg.DataFile)

	disk, err := diskio.NewDirectIODiskManager(cfg.DataFile)
	if err != nil {
		return nil, false, fmt.Errorf("engine: opening data file: %w", err)
	}

	scheduler := diskio.NewScheduler(disk)
	pool := buffer.NewManager(cfg.PoolSize, disk, scheduler, cfg.LRUKSize)
	cat := catalog.New(pool)
	txnMgr := txn.NewManager(cat)

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	engine = &StorageEngine{
		cfg:       cfg,
		disk:      disk,
		scheduler: scheduler,
		pool:      pool,
		catalog:   cat,
		txnMgr:    txnMgr,
		gcCancel:  cancel,
		gcGroup:   group,
	}

	group.Go(func() error {
		engine.runGC(gctx)
		return nil
	})

	slog.Info("storage engine opened", "path", cfg.DataFile, "new_database", isNewDatabase, "function", "Open", "at", "StorageEngine")
	return engine, isNewDatabase, nil
}

func dataFileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

// runGC ticks GarbageCollect at cfg.GCIntervalSeconds until ctx is
// cancelled.
func (e *StorageEngine) runGC(ctx context.Context) {
	interval := time.Duration(e.cfg.GCIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.txnMgr.GarbageCollect()
			slog.Info("garbage collection pass complete", "watermark", e.txnMgr.Watermark(), "function", "runGC", "at", "StorageEngine")
		}
	}
}

func (e *StorageEngine) Catalog() *catalog.Catalog  { return e.catalog }
func (e *StorageEngine) Transactions() *txn.Manager { return e.txnMgr }
func (e *StorageEngine) Pool() *buffer.Manager      { return e.pool }

// Close stops the GC loop, flushes every dirty page, and closes the
// backing file. The GC loop runs under an errgroup so a failure there
// is observed instead of dropped.
func (e *StorageEngine) Close() error {
	e.gcCancel()
	if err := e.gcGroup.Wait(); err != nil {
		slog.Error(err.Error(), "msg", "gc loop returned an error", "function", "Close", "at", "StorageEngine")
	}

	e.pool.FlushAll()
	e.scheduler.Shutdown()
	return e.disk.Close()
}
