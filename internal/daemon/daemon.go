package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"roost/internal/activities"
	"roost/internal/api"
	"roost/internal/config"
	"roost/internal/logging"
	"roost/internal/stator"
	"roost/internal/store"
)

// Daemon coordinates the scheduler and API server and enforces
// single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	runner    *stator.Runner
	scheduler *api.SchedulerService
	inbound   *activities.Service

	lockPath string
	lock     *flock.Flock
	server   *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, runner *stator.Runner, registry *stator.Registry, inbound *activities.Service) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil || runner == nil || registry == nil {
		return nil, errors.New("daemon requires config, store, logger, runner, and registry")
	}

	lockPath := filepath.Join(cfg.Server.LogDir, "roostd.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		runner:    runner,
		scheduler: api.NewSchedulerService(st, registry),
		inbound:   inbound,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}

	server, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.server = server
	return d, nil
}

// Start acquires the daemon lock, launches the scheduler, and begins serving
// the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another roost daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.runner.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := d.server.start(d.ctx); err != nil {
		d.runner.Stop()
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("roost daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the scheduler and API server and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	d.runner.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("roost daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status reports daemon runtime information including per-kind scheduling
// summaries.
func (d *Daemon) Status(ctx context.Context) (api.DaemonStatus, error) {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Domain:       d.cfg.Server.Domain,
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
	kinds, err := d.scheduler.Summaries(ctx)
	if err != nil {
		return status, err
	}
	status.Kinds = kinds
	return status, nil
}

// Scheduler exposes the scheduling query service backing the HTTP API.
func (d *Daemon) Scheduler() *api.SchedulerService {
	return d.scheduler
}

// Addr returns the bound API address, or empty when the server is not
// listening.
func (d *Daemon) Addr() string {
	return d.server.addr()
}
