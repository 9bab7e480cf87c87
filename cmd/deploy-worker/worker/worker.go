package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pubgate/gateway/common/actors"
	"github.com/pubgate/gateway/common/cdn"
	"github.com/pubgate/gateway/common/clients"
	"github.com/pubgate/gateway/common/config"
	"github.com/pubgate/gateway/common/configstore"
	"github.com/pubgate/gateway/common/logger"
	"github.com/pubgate/gateway/common/models"
	"github.com/pubgate/gateway/common/queue"
	"github.com/pubgate/gateway/common/repository"
)

// TaskStore begins locked task transactions
type TaskStore interface {
	Begin(ctx context.Context) (repository.TaskTx, error)
}

// ConfigStore reads and writes deployed CDN config documents
type ConfigStore interface {
	GetLatest(ctx context.Context, env string) (*models.CDNConfig, error)
	BatchWrite(ctx context.Context, records []configstore.Record) ([]configstore.Record, error)
}

// Worker executes config deployment and cache flush tasks pulled from
// the queue.
type Worker struct {
	cfg    *config.Config
	log    *logger.Logger
	tasks  TaskStore
	paths  cdn.PathLister
	store  ConfigStore
	broker queue.Broker

	// newPurge builds the purge client for one environment's
	// credentials; replaced in tests.
	newPurge func(creds config.PurgeCredentials) cdn.PurgeAPI
}

// New creates a worker
func New(cfg *config.Config, tasks TaskStore, paths cdn.PathLister, store ConfigStore, broker queue.Broker, log *logger.Logger) *Worker {
	return &Worker{
		cfg:    cfg,
		log:    log,
		tasks:  tasks,
		paths:  paths,
		store:  store,
		broker: broker,
		newPurge: func(creds config.PurgeCredentials) cdn.PurgeAPI {
			return clients.NewPurgeClient(creds, log)
		},
	}
}

// Register subscribes the worker's actors on the broker
func (w *Worker) Register(ctx context.Context) error {
	if err := w.broker.Subscribe(ctx, actors.DeployConfig, w.HandleDeployConfig); err != nil {
		return err
	}
	if err := w.broker.Subscribe(ctx, actors.CompleteDeployConfigTask, w.HandleCompleteDeploy); err != nil {
		return err
	}
	return w.broker.Subscribe(ctx, actors.FlushCDNCache, w.HandleFlushCache)
}

// claimTask claims a task for execution: NOT_STARTED transitions to
// IN_PROGRESS and commits immediately, releasing the row lock to any
// lock waiters before the slow work starts. The commit drops the lock,
// so the task is re-read under a fresh one; state must never be
// assumed stable across a commit.
//
// The returned transaction holds the task's row lock. A task observed
// in any state other than IN_PROGRESS after the claim is a logged
// no-op: redelivery of the same queued message must never double-apply
// work. A task past its deadline is marked FAILED and abandoned.
func (w *Worker) claimTask(ctx context.Context, id uuid.UUID) (repository.TaskTx, *models.Task, bool) {
	tx, task, ok := w.lockTask(ctx, id)
	if !ok {
		return nil, nil, false
	}

	if task.State == models.TaskNotStarted {
		// Mark the task in progress so clients know we're working on
		// it, and release the lock right away.
		if err := tx.SetState(ctx, id, models.TaskInProgress); err != nil {
			w.log.Error("failed to mark task in progress", "task_id", id, "error", err)
			tx.Rollback(ctx)
			return nil, nil, false
		}
		if err := tx.Commit(ctx); err != nil {
			w.log.Error("failed to commit task claim", "task_id", id, "error", err)
			return nil, nil, false
		}

		// The commit dropped our lock, so reload.
		tx, task, ok = w.lockTask(ctx, id)
		if !ok {
			return nil, nil, false
		}
	}

	if task.State != models.TaskInProgress {
		w.log.Warn("task in unexpected state",
			"task_id", id,
			"state", task.State,
		)
		tx.Rollback(ctx)
		return nil, nil, false
	}

	if task.Deadline != nil && task.Deadline.Before(time.Now().UTC()) {
		w.log.Error("task exceeded deadline",
			"task_id", id,
			"deadline", task.Deadline,
		)
		w.failTask(ctx, tx, id)
		return nil, nil, false
	}

	return tx, task, true
}

// lockInProgress re-claims a task that must already be IN_PROGRESS,
// for completion follow-ups. Any other observed state is a logged
// no-op.
func (w *Worker) lockInProgress(ctx context.Context, id uuid.UUID) (repository.TaskTx, *models.Task, bool) {
	tx, task, ok := w.lockTask(ctx, id)
	if !ok {
		return nil, nil, false
	}

	if task.State != models.TaskInProgress {
		w.log.Warn("task in unexpected state",
			"task_id", id,
			"state", task.State,
		)
		tx.Rollback(ctx)
		return nil, nil, false
	}

	return tx, task, true
}

func (w *Worker) lockTask(ctx context.Context, id uuid.UUID) (repository.TaskTx, *models.Task, bool) {
	tx, err := w.tasks.Begin(ctx)
	if err != nil {
		w.log.Error("failed to begin task transaction", "task_id", id, "error", err)
		return nil, nil, false
	}

	task, err := tx.GetForUpdate(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		w.log.Warn("task not found", "task_id", id)
		tx.Rollback(ctx)
		return nil, nil, false
	}
	if err != nil {
		w.log.Error("failed to load task", "task_id", id, "error", err)
		tx.Rollback(ctx)
		return nil, nil, false
	}

	return tx, task, true
}

// failTask records terminal failure and commits
func (w *Worker) failTask(ctx context.Context, tx repository.TaskTx, id uuid.UUID) {
	if err := tx.SetState(ctx, id, models.TaskFailed); err != nil {
		w.log.Error("failed to mark task failed", "task_id", id, "error", err)
		tx.Rollback(ctx)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		w.log.Error("failed to commit task failure", "task_id", id, "error", err)
	}
}
