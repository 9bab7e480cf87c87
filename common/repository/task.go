package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pubgate/gateway/common/db"
	"github.com/pubgate/gateway/common/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// TaskTx is one transaction scoped to task rows. GetForUpdate takes a
// row-level exclusive lock which drops when the transaction commits;
// callers needing the lock after a commit must begin a new transaction
// and re-read.
type TaskTx interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Task, error)
	SetState(ctx context.Context, id uuid.UUID, state models.TaskState) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TaskRepository handles database operations for tasks
type TaskRepository struct {
	db *db.DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(database *db.DB) *TaskRepository {
	return &TaskRepository{db: database}
}

// Create inserts a new task
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (id, publish_id, state, updated, deadline)
		VALUES ($1, $2, $3, now(), $4)
	`

	_, err := r.db.Exec(ctx, query, task.ID, task.PublishID, task.State, task.Deadline)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// GetByID retrieves a task by its ID
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := `
		SELECT id, publish_id, state, updated, deadline
		FROM tasks
		WHERE id = $1
	`

	task := &models.Task{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&task.ID,
		&task.PublishID,
		&task.State,
		&task.Updated,
		&task.Deadline,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// Begin opens a transaction for locked task mutation
func (r *TaskRepository) Begin(ctx context.Context) (TaskTx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin task transaction: %w", err)
	}
	return &taskTx{tx: tx}, nil
}

type taskTx struct {
	tx pgx.Tx
}

// GetForUpdate reads a task row holding its exclusive lock for the
// remainder of the transaction.
func (t *taskTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := `
		SELECT id, publish_id, state, updated, deadline
		FROM tasks
		WHERE id = $1
		FOR UPDATE
	`

	task := &models.Task{}
	err := t.tx.QueryRow(ctx, query, id).Scan(
		&task.ID,
		&task.PublishID,
		&task.State,
		&task.Updated,
		&task.Deadline,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task for update: %w", err)
	}

	return task, nil
}

// SetState updates the task state and last-updated timestamp
func (t *taskTx) SetState(ctx context.Context, id uuid.UUID, state models.TaskState) error {
	query := `
		UPDATE tasks
		SET state = $2, updated = now()
		WHERE id = $1
	`

	_, err := t.tx.Exec(ctx, query, id, state)
	if err != nil {
		return fmt.Errorf("failed to update task state: %w", err)
	}

	return nil
}

func (t *taskTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *taskTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
