package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueCritical: 6,
			QueueDefault:  3,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn("task failed",
				slog.String("type", task.Type()),
				slog.Int("retried", retried),
				slog.Int("max_retry", maxRetry),
				slog.Any("error", err))
		}),
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Enqueuer is the subset of *asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// TaskLookup finds queued tasks by id and requeues archived ones.
// *asynq.Inspector satisfies it.
type TaskLookup interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	RunTask(queue, id string) error
	Close() error
}

// Client submits jobs to the queue.
type Client struct {
	client   Enqueuer
	tasks    TaskLookup
	maxRetry int
}

// NewClient constructs an Asynq client. maxRetry bounds propagation retries.
func NewClient(redisOpts asynq.RedisClientOpt, maxRetry int) *Client {
	return NewClientWith(asynq.NewClient(redisOpts), maxRetry).WithTaskLookup(asynq.NewInspector(redisOpts))
}

// NewClientWith wraps an existing enqueuer.
func NewClientWith(client Enqueuer, maxRetry int) *Client {
	return &Client{client: client, maxRetry: maxRetry}
}

// WithTaskLookup lets the client revive archived propagation tasks whose id
// blocks a new enqueue.
func (c *Client) WithTaskLookup(tasks TaskLookup) *Client {
	c.tasks = tasks
	return c
}

// EnqueuePropagation submits balance propagation for voucherID. A task
// already waiting for the voucher counts as success. An archived one (retries
// exhausted or skipped) still holds the task id, so it is moved back to
// pending instead.
func (c *Client) EnqueuePropagation(ctx context.Context, voucherID int64) error {
	task, err := NewPropagateTask(voucherID, c.maxRetry)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return c.reviveArchived(ctx, task, voucherID)
	}
	if err != nil {
		return fmt.Errorf("jobs: enqueue propagation %d: %w", voucherID, err)
	}
	return nil
}

func (c *Client) reviveArchived(ctx context.Context, task *asynq.Task, voucherID int64) error {
	if c.tasks == nil {
		return nil
	}
	id := PropagateTaskID(voucherID)
	info, err := c.tasks.GetTaskInfo(QueueCritical, id)
	if errors.Is(err, asynq.ErrTaskNotFound) {
		// Finished between the enqueue and the lookup; the id is free again.
		if _, err := c.client.EnqueueContext(ctx, task); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			return fmt.Errorf("jobs: enqueue propagation %d: %w", voucherID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("jobs: inspect propagation %d: %w", voucherID, err)
	}
	if info.State != asynq.TaskStateArchived {
		return nil
	}
	if err := c.tasks.RunTask(QueueCritical, id); err != nil {
		return fmt.Errorf("jobs: requeue archived propagation %d: %w", voucherID, err)
	}
	return nil
}

// EnqueueIntegrityCheck submits an immediate integrity run.
func (c *Client) EnqueueIntegrityCheck(ctx context.Context) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, NewGLIntegrityTask())
}

// Close releases client resources.
func (c *Client) Close() error {
	var errs []error
	if c.tasks != nil {
		errs = append(errs, c.tasks.Close())
	}
	errs = append(errs, c.client.Close())
	return errors.Join(errs...)
}

// QueueStat is a queue depth snapshot.
type QueueStat struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Processed int    `json:"processed_today"`
	Failed    int    `json:"failed_today"`
}

// QueueInspector reads queue state.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Stats returns depth snapshots for the ledger queues.
func Stats(inspector QueueInspector) ([]QueueStat, error) {
	out := make([]QueueStat, 0, 2)
	for _, q := range []string{QueueCritical, QueueDefault} {
		info, err := inspector.GetQueueInfo(q)
		if err != nil {
			return nil, fmt.Errorf("jobs: queue %s: %w", q, err)
		}
		out = append(out, QueueStat{
			Queue:     info.Queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Processed: info.Processed,
			Failed:    info.Failed,
		})
	}
	return out, nil
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"queues": []QueueStat{}})
		return
	}
	stats, err := Stats(h.inspector)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable), "queue inspector unavailable")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"queues": stats})
}
