package worker

import (
	"context"

	"github.com/pubgate/gateway/common/actors"
	"github.com/pubgate/gateway/common/cdn"
	"github.com/pubgate/gateway/common/models"
	"github.com/pubgate/gateway/common/queue"
)

// HandleFlushCache runs an ad-hoc cache flush outside the deploy
// workflow. Alias resolution uses the currently deployed config.
//
// The owning task's id is carried as the message id.
func (w *Worker) HandleFlushCache(ctx context.Context, msg *queue.Message) error {
	var args actors.FlushCacheArgs
	if err := msg.DecodeKwargs(&args); err != nil {
		return err
	}

	taskID := msg.ID
	log := w.log.WithTask(taskID.String()).WithEnv(args.Env)

	tx, _, ok := w.claimTask(ctx, taskID)
	if !ok {
		return nil
	}

	env := w.cfg.GetEnvironment(args.Env)
	if env == nil {
		log.Error("unknown environment", "env", args.Env)
		w.failTask(ctx, tx, taskID)
		return nil
	}

	deployed, err := w.store.GetLatest(ctx, args.Env)
	if err != nil {
		log.Error("task encountered an error", "error", err)
		w.failTask(ctx, tx, taskID)
		return nil
	}

	var aliases []models.Alias
	if deployed != nil {
		aliases = deployed.AllAliases()
	}

	flusher := cdn.NewFlusher(args.Paths, env, aliases, w.newPurge(env.Purge), log)
	if err := flusher.Run(ctx); err != nil {
		log.Error("task encountered an error", "error", err)
		w.failTask(ctx, tx, taskID)
		return nil
	}

	if err := tx.SetState(ctx, taskID, models.TaskComplete); err != nil {
		log.Error("failed to mark task complete", "error", err)
		tx.Rollback(ctx)
		return nil
	}
	if err := tx.Commit(ctx); err != nil {
		log.Error("failed to commit task completion", "error", err)
	}
	return nil
}
