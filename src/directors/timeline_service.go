package directors

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mediatorpro/src/catalog"
	"mediatorpro/src/engine"
	"mediatorpro/src/helpers"
	"mediatorpro/src/models"
)

type TimelineService struct {
	db     *engine.Database
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewTimelineService(db *engine.Database, logger *zap.SugaredLogger) *TimelineService {
	return &TimelineService{db: db, logger: logger, now: time.Now}
}

// Record adds an event to a matter's timeline. An empty date means today.
func (s *TimelineService) Record(ctx context.Context, caseID, date, title, description string) (*models.TimelineEvent, error) {
	return s.record(ctx, s.db, caseID, date, title, description)
}

func (s *TimelineService) record(ctx context.Context, scope engine.Scope, caseID, date, title, description string) (*models.TimelineEvent, error) {
	if date == "" {
		date = helpers.Today(s.now())
	}
	e := models.TimelineEvent{
		ID:          helpers.GenerateUUID(),
		CaseID:      caseID,
		Date:        date,
		Title:       title,
		Description: description,
	}
	if _, err := engine.AddItem(ctx, scope, catalog.Timeline, e); err != nil {
		return nil, err
	}
	s.logger.Debugw("Recorded timeline event", "caseId", caseID, "title", title)
	return &e, nil
}

// ForCase returns a matter's timeline, newest first.
func (s *TimelineService) ForCase(ctx context.Context, caseID string) ([]models.TimelineEvent, error) {
	return catalog.TimelineForCase(ctx, s.db, caseID)
}
