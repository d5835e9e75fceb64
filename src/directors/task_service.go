package directors

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mediatorpro/src/catalog"
	"mediatorpro/src/engine"
	"mediatorpro/src/helpers"
	"mediatorpro/src/models"
)

type TaskService struct {
	db     *engine.Database
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewTaskService(db *engine.Database, logger *zap.SugaredLogger) *TaskService {
	return &TaskService{db: db, logger: logger, now: time.Now}
}

// Create stores a new task. An empty ID or status is filled in.
func (s *TaskService) Create(ctx context.Context, t models.Task) (*models.Task, error) {
	if t.ID == "" {
		t.ID = helpers.GenerateUUID()
	}
	if t.Status == "" {
		t.Status = models.TaskPending
	}
	if _, err := engine.AddItem(ctx, s.db, catalog.Tasks, t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Complete marks a task completed.
func (s *TaskService) Complete(ctx context.Context, id string) (*models.Task, error) {
	t, err := engine.UpdateItem(ctx, s.db, catalog.Tasks, id, func(t *models.Task) error {
		t.Status = models.TaskCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	s.logger.Infow("Completed task", "id", id)
	return t, nil
}

func (s *TaskService) ByStatus(ctx context.Context, status models.TaskStatus) ([]models.Task, error) {
	return catalog.TasksByStatus(ctx, s.db, status)
}

// Overdue returns open tasks due before today.
func (s *TaskService) Overdue(ctx context.Context) ([]models.Task, error) {
	return catalog.OverdueTasks(ctx, s.db, s.now())
}
