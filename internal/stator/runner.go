package stator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"roost/internal/config"
	"roost/internal/logging"
	"roost/internal/notifications"
	"roost/internal/services"
	"roost/internal/store"
)

// Runner claims ready entities and executes their state handlers. One
// polling goroutine runs per registered kind; handler executions share a
// bounded worker pool across kinds.
type Runner struct {
	cfg      *config.Config
	store    *store.Store
	logger   *slog.Logger
	notifier notifications.Service
	registry *Registry

	pollInterval  time.Duration
	errorRetry    time.Duration
	lockDuration  time.Duration
	handlerBudget time.Duration

	sem chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner constructs a runner for every kind in the registry.
func NewRunner(cfg *config.Config, st *store.Store, logger *slog.Logger, notifier notifications.Service, registry *Registry) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	concurrency := cfg.Scheduler.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	handlerBudget := time.Duration(cfg.Scheduler.HandlerBudget) * time.Second
	if handlerBudget <= 0 {
		handlerBudget = time.Minute
	}
	return &Runner{
		cfg:           cfg,
		store:         st,
		logger:        logging.NewComponentLogger(logger, "stator"),
		notifier:      notifier,
		registry:      registry,
		pollInterval:  time.Duration(cfg.Scheduler.PollInterval) * time.Second,
		errorRetry:    time.Duration(cfg.Scheduler.ErrorRetryInterval) * time.Second,
		lockDuration:  time.Duration(cfg.Scheduler.LockDuration) * time.Second,
		handlerBudget: handlerBudget,
		sem:           make(chan struct{}, concurrency),
	}
}

// Start begins background scheduling.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("stator already running")
	}
	kinds := r.registry.Kinds()
	if len(kinds) == 0 {
		r.mu.Unlock()
		return errors.New("no graphs registered")
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.wg.Add(len(kinds))
	r.mu.Unlock()

	for _, kind := range kinds {
		go r.runKind(runCtx, kind)
	}
	return nil
}

// Stop terminates background scheduling and waits for in-flight handlers.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
}

func (r *Runner) runKind(ctx context.Context, kind store.Kind) {
	defer r.wg.Done()

	graph, ok := r.registry.Graph(kind)
	if !ok {
		return
	}
	logger := r.logger.With(logging.String(logging.FieldEntity, string(kind)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, err := r.store.ReclaimExpired(ctx, kind); err != nil {
			logger.Warn("reclaim of expired locks failed; stuck entities may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check database access"),
			)
		}

		rows, err := r.store.ReadySet(ctx, kind, graph.TerminalStates(), r.cfg.Scheduler.BatchSize)
		if err != nil {
			r.handleReadySetError(ctx, logger, err)
			continue
		}
		if len(rows) == 0 {
			r.waitForWorkOrShutdown(ctx)
			continue
		}

		dispatched := false
		for _, row := range rows {
			if ctx.Err() != nil {
				return
			}
			state, ok := graph.State(row.State)
			if !ok {
				logger.Warn("entity in unknown state",
					logging.Int64(logging.FieldEntityID, row.ID),
					logging.String(logging.FieldState, row.State),
				)
				continue
			}

			select {
			case r.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			claimed, err := r.store.Claim(ctx, kind, row.ID, r.lockDuration)
			if err != nil {
				<-r.sem
				logger.Error("claim failed", logging.Error(err), logging.Int64(logging.FieldEntityID, row.ID))
				continue
			}
			if !claimed {
				<-r.sem
				continue
			}

			dispatched = true
			r.wg.Add(1)
			go r.execute(ctx, kind, graph, state, row)
		}
		if !dispatched {
			r.waitForWorkOrShutdown(ctx)
		}
	}
}

func (r *Runner) execute(ctx context.Context, kind store.Kind, graph *Graph, state State, row store.ScheduledRow) {
	defer r.wg.Done()
	defer func() { <-r.sem }()

	requestID := uuid.NewString()
	entityCtx := services.WithRequestID(services.WithState(services.WithEntity(ctx, string(kind), row.ID), row.State), requestID)
	logger := logging.WithContext(entityCtx, r.logger)

	attempts := row.Attempts + 1
	if limit := r.cfg.Scheduler.MaxAttempts; limit > 0 && attempts > limit {
		r.park(entityCtx, logger, kind, row.ID, fmt.Sprintf("exceeded %d attempts in state %s", limit, row.State))
		return
	}

	budgetCtx, cancel := context.WithTimeout(entityCtx, r.handlerBudget)
	defer cancel()

	start := time.Now()
	next, err := state.Handler(budgetCtx, row.ID)
	switch {
	case err != nil:
		r.handleFailure(entityCtx, logger, kind, row, err)
	case next == Again:
		if err := r.store.ScheduleRetry(entityCtx, kind, row.ID, state.TryInterval); err != nil {
			logger.Error("failed to reschedule entity", logging.Error(err))
		}
	default:
		r.handleTransition(entityCtx, logger, graph, kind, row, next, time.Since(start))
	}
}

func (r *Runner) handleTransition(ctx context.Context, logger *slog.Logger, graph *Graph, kind store.Kind, row store.ScheduledRow, next string, elapsed time.Duration) {
	if !graph.ValidTransition(row.State, next) {
		err := fmt.Errorf("transition %s -> %s not allowed", row.State, next)
		logger.Error("handler requested invalid transition",
			logging.Error(err),
			logging.String(logging.FieldEventType, "invalid_transition"),
		)
		if storeErr := r.store.RecordHandlerFailure(ctx, kind, row.ID, err.Error()); storeErr != nil {
			logger.Error("failed to record invalid transition", logging.Error(storeErr))
		}
		return
	}

	// Non-terminal targets stay locked for their TryInterval so the next
	// handler run happens no earlier than the state's revisit cadence.
	nextState, _ := graph.State(next)
	if err := r.store.TransitionState(ctx, kind, row.ID, next, nextState.Terminal(), nextState.TryInterval); err != nil {
		logger.Error("failed to persist transition", logging.Error(err))
		return
	}
	logger.Info("state transition",
		logging.String(logging.FieldEventType, "transition"),
		logging.String("next_state", next),
		logging.Duration("handler_duration", elapsed),
	)
}

func (r *Runner) handleFailure(ctx context.Context, logger *slog.Logger, kind store.Kind, row store.ScheduledRow, handlerErr error) {
	if !services.IsRetryable(handlerErr) {
		r.park(ctx, logger, kind, row.ID, handlerErr.Error())
		return
	}

	logger.Warn("handler failed; will retry after lock expiry",
		logging.Error(handlerErr),
		logging.String(logging.FieldEventType, "handler_failure"),
		logging.Int("attempts", row.Attempts+1),
	)
	if err := r.store.RecordHandlerFailure(ctx, kind, row.ID, handlerErr.Error()); err != nil {
		logger.Error("failed to record handler failure", logging.Error(err))
	}
}

func (r *Runner) park(ctx context.Context, logger *slog.Logger, kind store.Kind, id int64, reason string) {
	logger.Error("parking entity",
		logging.String(logging.FieldEventType, "entity_parked"),
		logging.String("reason", reason),
	)
	if err := r.store.Park(ctx, kind, id, reason); err != nil {
		logger.Error("failed to park entity", logging.Error(err))
		return
	}
	if err := r.notifier.Publish(ctx, notifications.EventEntityParked, notifications.Payload{
		"kind":   string(kind),
		"id":     id,
		"reason": reason,
	}); err != nil {
		logger.Debug("park notification failed", logging.Error(err))
	}
}

func (r *Runner) handleReadySetError(ctx context.Context, logger *slog.Logger, err error) {
	logger.Error("failed to fetch ready entities",
		logging.Error(err),
		logging.String(logging.FieldEventType, "ready_set_failed"),
		logging.String(logging.FieldErrorHint, "check database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(r.errorRetry):
	}
}

func (r *Runner) waitForWorkOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(r.pollInterval):
	}
}
