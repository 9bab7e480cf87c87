package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pubgate/gateway/common/actors"
	"github.com/pubgate/gateway/common/logger"
	"github.com/pubgate/gateway/common/models"
	"github.com/pubgate/gateway/common/queue"
	"github.com/pubgate/gateway/common/repository"
)

// DeployService turns deployment and flush requests into tracked
// tasks plus queued actor messages. The task row, not the message, is
// the source of truth for progress.
type DeployService struct {
	tasks         *repository.TaskRepository
	broker        queue.Broker
	flushDeadline time.Duration
	log           *logger.Logger
}

// NewDeployService creates a deploy service
func NewDeployService(tasks *repository.TaskRepository, broker queue.Broker, flushDeadline time.Duration, log *logger.Logger) *DeployService {
	return &DeployService{
		tasks:         tasks,
		broker:        broker,
		flushDeadline: flushDeadline,
		log:           log,
	}
}

// GetTask retrieves a task by id
func (s *DeployService) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return s.tasks.GetByID(ctx, id)
}

// DeployConfig enqueues deployment of a config document for an
// environment. The created task shares the message's id.
func (s *DeployService) DeployConfig(ctx context.Context, env string, cfg *models.CDNConfig, fromDate time.Time) (*models.Task, error) {
	msg, err := queue.NewMessage(actors.DeployConfig, actors.DeployConfigArgs{
		Env:      env,
		FromDate: fromDate,
		Config:   cfg,
	})
	if err != nil {
		return nil, err
	}

	task := &models.Task{
		ID:    msg.ID,
		State: models.TaskNotStarted,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	if err := s.broker.Enqueue(ctx, msg); err != nil {
		return nil, err
	}

	s.log.Info("enqueued config deployment",
		"task_id", task.ID,
		"env", env,
		"from_date", fromDate,
	)
	return task, nil
}

// FlushCache enqueues an ad-hoc cache flush. The task carries a
// deadline: a flush that sat queued too long is worthless and gets
// abandoned at claim time.
func (s *DeployService) FlushCache(ctx context.Context, env string, paths []string) (*models.Task, error) {
	msg, err := queue.NewMessage(actors.FlushCDNCache, actors.FlushCacheArgs{
		Env:   env,
		Paths: paths,
	})
	if err != nil {
		return nil, err
	}

	deadline := time.Now().UTC().Add(s.flushDeadline)
	task := &models.Task{
		ID:       msg.ID,
		State:    models.TaskNotStarted,
		Deadline: &deadline,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	if err := s.broker.Enqueue(ctx, msg); err != nil {
		return nil, err
	}

	s.log.Info("enqueued cache flush",
		"task_id", task.ID,
		"env", env,
		"path_count", len(paths),
	)
	return task, nil
}
