package worker

import (
	"context"
	"fmt"

	"github.com/pubgate/gateway/common/actors"
	"github.com/pubgate/gateway/common/cdn"
	"github.com/pubgate/gateway/common/configstore"
	"github.com/pubgate/gateway/common/logger"
	"github.com/pubgate/gateway/common/models"
	"github.com/pubgate/gateway/common/queue"
)

// HandleDeployConfig deploys a full CDN config document: it diffs the
// incoming config against the previously deployed one, writes the new
// document to the key-value store, and defers completion (and the
// cache flush of the affected paths) to a delayed follow-up message.
// The task stays IN_PROGRESS until the follow-up runs.
//
// The owning task's id is carried as the message id.
func (w *Worker) HandleDeployConfig(ctx context.Context, msg *queue.Message) error {
	var args actors.DeployConfigArgs
	if err := msg.DecodeKwargs(&args); err != nil {
		return err
	}

	taskID := msg.ID
	log := w.log.WithTask(taskID.String()).WithEnv(args.Env)

	tx, _, ok := w.claimTask(ctx, taskID)
	if !ok {
		return nil
	}

	flushPaths, err := w.writeConfig(ctx, log, &args)
	if err != nil {
		// A failed deployment must not trigger a purge of paths for a
		// config that was never actually published.
		log.Error("task encountered an error", "error", err)
		w.failTask(ctx, tx, taskID)
		return nil
	}

	followUp, err := queue.NewMessage(actors.CompleteDeployConfigTask, actors.CompleteDeployArgs{
		TaskID:     taskID,
		Env:        args.Env,
		FlushPaths: flushPaths,
	})
	if err != nil {
		log.Error("task encountered an error", "error", err)
		w.failTask(ctx, tx, taskID)
		return nil
	}
	followUp.WithDelay(w.cfg.Worker.CompleteDelay)

	if err := w.broker.Enqueue(ctx, followUp); err != nil {
		log.Error("task encountered an error", "error", err)
		w.failTask(ctx, tx, taskID)
		return nil
	}

	log.Info("sent task for completion",
		"message_id", followUp.ID,
		"flush_path_count", len(flushPaths),
	)

	// Task stays IN_PROGRESS; committing releases the row lock.
	if err := tx.Commit(ctx); err != nil {
		log.Error("failed to commit deployment", "error", err)
	}
	return nil
}

// writeConfig performs the substantive deployment work: flush-path
// computation and the all-or-nothing key-value write.
func (w *Worker) writeConfig(ctx context.Context, log *logger.Logger, args *actors.DeployConfigArgs) ([]string, error) {
	log.Info("writing config", "from_date", args.FromDate)

	prev, err := w.store.GetLatest(ctx, args.Env)
	if err != nil {
		return nil, fmt.Errorf("read deployed config: %w", err)
	}

	flushPaths, err := cdn.FlushPaths(ctx, prev, args.Config, args.Env, w.paths, w.cfg.CDN.ListingFlush)
	if err != nil {
		return nil, fmt.Errorf("compute flush paths: %w", err)
	}

	body, err := configstore.EncodeConfig(args.Config)
	if err != nil {
		return nil, err
	}

	unprocessed, err := w.store.BatchWrite(ctx, []configstore.Record{{
		Env:      args.Env,
		FromDate: args.FromDate,
		Body:     body,
	}})
	if err != nil {
		return nil, err
	}
	if len(unprocessed) > 0 {
		return nil, fmt.Errorf("config write left %d unprocessed records", len(unprocessed))
	}

	return flushPaths, nil
}

// HandleCompleteDeploy finishes a config deployment after the delay
// that lets edge caches observe the new config: it flushes the
// affected paths, then marks the task COMPLETE.
func (w *Worker) HandleCompleteDeploy(ctx context.Context, msg *queue.Message) error {
	var args actors.CompleteDeployArgs
	if err := msg.DecodeKwargs(&args); err != nil {
		return err
	}

	log := w.log.WithTask(args.TaskID.String())

	tx, _, ok := w.lockInProgress(ctx, args.TaskID)
	if !ok {
		return nil
	}

	if len(args.FlushPaths) > 0 && args.Env != "" {
		env := w.cfg.GetEnvironment(args.Env)
		if env == nil {
			log.Error("unknown environment", "env", args.Env)
			w.failTask(ctx, tx, args.TaskID)
			return nil
		}

		// The diff already produced concrete paths on both sides of
		// every changed alias; no alias table is needed here.
		flusher := cdn.NewFlusher(args.FlushPaths, env, nil, w.newPurge(env.Purge), log)
		if err := flusher.Run(ctx); err != nil {
			log.Error("task encountered an error", "error", err)
			w.failTask(ctx, tx, args.TaskID)
			return nil
		}
	}

	if err := tx.SetState(ctx, args.TaskID, models.TaskComplete); err != nil {
		log.Error("failed to mark task complete", "error", err)
		tx.Rollback(ctx)
		return nil
	}
	if err := tx.Commit(ctx); err != nil {
		log.Error("failed to commit task completion", "error", err)
		return nil
	}

	log.Info("task complete")
	return nil
}
