package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pubgate/gateway/common/logger"
	"github.com/pubgate/gateway/common/models"
	"github.com/pubgate/gateway/common/repository"
	"github.com/pubgate/gateway/common/validation"
)

// ErrStateConflict is returned when a publish is not in the state the
// requested operation expects.
var ErrStateConflict = errors.New("publish state conflict")

// PublishService owns the publish lifecycle: creation, item
// validation, and the commit workflow that maintains the
// published-path index.
type PublishService struct {
	publishes *repository.PublishRepository
	paths     *repository.PublishedPathRepository
	validator *validation.ItemValidator
	log       *logger.Logger
}

// NewPublishService creates a publish service
func NewPublishService(
	publishes *repository.PublishRepository,
	paths *repository.PublishedPathRepository,
	validator *validation.ItemValidator,
	log *logger.Logger,
) *PublishService {
	return &PublishService{
		publishes: publishes,
		paths:     paths,
		validator: validator,
		log:       log,
	}
}

// Create starts a new pending publish for an environment
func (s *PublishService) Create(ctx context.Context, env string) (*models.Publish, error) {
	publish := &models.Publish{
		ID:    uuid.New(),
		Env:   env,
		State: models.PublishPending,
	}

	if err := s.publishes.Create(ctx, publish); err != nil {
		return nil, err
	}

	s.log.Info("created publish", "publish_id", publish.ID, "env", env)
	return publish, nil
}

// Get retrieves a publish with its items
func (s *PublishService) Get(ctx context.Context, id uuid.UUID) (*models.Publish, error) {
	return s.publishes.GetByID(ctx, id)
}

// AddItems validates and persists items onto a pending publish.
// Structural validation always runs; policy validation is skipped only
// for callers trusted to bypass it.
func (s *PublishService) AddItems(ctx context.Context, id uuid.UUID, items []models.Item, enforcePolicy bool) error {
	publish, err := s.publishes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if publish.State != models.PublishPending {
		return fmt.Errorf("%w: publish %s is %s", ErrStateConflict, id, publish.State)
	}

	for i := range items {
		if err := s.validator.Validate(&items[i]); err != nil {
			return err
		}
		if enforcePolicy {
			if err := s.validator.ValidatePolicy(&items[i]); err != nil {
				return err
			}
		}
		items[i].PublishID = id
	}

	return s.publishes.AddItems(ctx, id, items)
}

// Commit runs the commit workflow: PENDING to COMMITTING, write every
// item's live-path record, then COMMITTED. Any failure leaves the
// publish FAILED.
func (s *PublishService) Commit(ctx context.Context, id uuid.UUID) (*models.Publish, error) {
	publish, err := s.publishes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.publishes.UpdateState(ctx, id, models.PublishPending, models.PublishCommitting)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: publish %s is %s", ErrStateConflict, id, publish.State)
	}
	if err != nil {
		return nil, err
	}

	if err := s.writePaths(ctx, publish); err != nil {
		s.log.Error("publish commit failed", "publish_id", id, "error", err)
		if ferr := s.publishes.UpdateState(ctx, id, models.PublishCommitting, models.PublishFailed); ferr != nil {
			s.log.Error("failed to mark publish failed", "publish_id", id, "error", ferr)
		}
		return nil, err
	}

	if err := s.publishes.UpdateState(ctx, id, models.PublishCommitting, models.PublishCommitted); err != nil {
		return nil, err
	}

	s.log.Info("publish committed", "publish_id", id, "item_count", len(publish.Items))
	return s.publishes.GetByID(ctx, id)
}

// writePaths maintains the published-path index: live items are
// upserted, "absent" items delete any previously live row.
func (s *PublishService) writePaths(ctx context.Context, publish *models.Publish) error {
	for _, item := range publish.Items {
		if item.ObjectKey == models.ObjectKeyAbsent {
			if err := s.paths.Delete(ctx, publish.Env, item.WebURI); err != nil {
				return err
			}
			continue
		}
		if err := s.paths.Upsert(ctx, publish.Env, item.WebURI); err != nil {
			return err
		}
	}
	return nil
}
