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
	"mediatorpro/src/settings"
)

// MatterService manages matters and the records hanging off them.
type MatterService struct {
	db       *engine.Database
	timeline *TimelineService
	cascade  string
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewMatterService(db *engine.Database, timeline *TimelineService, args *settings.Arguments, logger *zap.SugaredLogger) *MatterService {
	cascade := settings.CascadeNone
	if args != nil && args.CascadePolicy != "" {
		cascade = args.CascadePolicy
	}
	return &MatterService{
		db:       db,
		timeline: timeline,
		cascade:  cascade,
		logger:   logger,
		now:      time.Now,
	}
}

// Create stores a new matter together with its "Matter opened" timeline
// event. An empty ID or status is filled in.
func (s *MatterService) Create(ctx context.Context, m models.Matter) (*models.Matter, error) {
	if m.ID == "" {
		m.ID = helpers.GenerateUUID()
	}
	if m.Status == "" {
		m.Status = models.MatterOpen
	}
	now := s.now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	err := s.db.RunInTransaction(ctx, func(tx *engine.Tx) error {
		if _, err := engine.AddItem(ctx, tx, catalog.Matters, m); err != nil {
			return err
		}
		_, err := s.timeline.record(ctx, tx, m.ID, helpers.Today(now), "Matter opened", m.Title)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create matter: %w", err)
	}

	s.logger.Infow("Created matter", "id", m.ID, "caseFileNumber", m.CaseFileNumber)
	return &m, nil
}

func (s *MatterService) Get(ctx context.Context, id string) (*models.Matter, error) {
	m, err := engine.GetItem(ctx, s.db, catalog.Matters, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("matter %s: %w", id, ErrNotFound)
	}
	return m, nil
}

func (s *MatterService) List(ctx context.Context) ([]models.Matter, error) {
	return engine.GetAllItems(ctx, s.db, catalog.Matters)
}

func (s *MatterService) ByStatus(ctx context.Context, status models.MatterStatus) ([]models.Matter, error) {
	return catalog.MattersByStatus(ctx, s.db, status)
}

// Update applies fn to the stored matter and stamps UpdatedAt.
func (s *MatterService) Update(ctx context.Context, id string, fn func(*models.Matter)) (*models.Matter, error) {
	m, err := engine.UpdateItem(ctx, s.db, catalog.Matters, id, func(m *models.Matter) error {
		fn(m)
		m.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("matter %s: %w", id, ErrNotFound)
	}
	return m, nil
}

// Delete removes a matter. Under the children cascade policy its notes,
// documents, case files and timeline go with it in the same transaction;
// otherwise they are left in place. Deleting a missing matter is a no-op.
func (s *MatterService) Delete(ctx context.Context, id string) error {
	removed := 0
	err := s.db.RunInTransaction(ctx, func(tx *engine.Tx) error {
		m, err := engine.GetItem(ctx, tx, catalog.Matters, id)
		if err != nil || m == nil {
			return err
		}
		if err := engine.DeleteItem(ctx, tx, catalog.Matters, id); err != nil {
			return err
		}
		if s.cascade != settings.CascadeChildren {
			return nil
		}
		removed, err = deleteChildren(ctx, tx, m)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete matter %s: %w", id, err)
	}

	s.logger.Infow("Deleted matter", "id", id, "cascade", s.cascade, "childrenRemoved", removed)
	return nil
}

func deleteChildren(ctx context.Context, tx *engine.Tx, m *models.Matter) (int, error) {
	removed := 0
	if m.CaseFileNumber != "" {
		notes, err := catalog.NotesByCase(ctx, tx, m.CaseFileNumber)
		if err != nil {
			return removed, err
		}
		for _, n := range notes {
			if err := engine.DeleteItem(ctx, tx, catalog.Notes, n.ID); err != nil {
				return removed, err
			}
			removed++
		}
	}

	docs, err := catalog.DocumentsByCase(ctx, tx, m.ID)
	if err != nil {
		return removed, err
	}
	for _, d := range docs {
		if err := engine.DeleteItem(ctx, tx, catalog.Documents, d.ID); err != nil {
			return removed, err
		}
		removed++
	}

	files, err := catalog.CaseFilesForCase(ctx, tx, m.ID)
	if err != nil {
		return removed, err
	}
	for _, f := range files {
		if err := engine.DeleteItem(ctx, tx, catalog.CaseFiles, f.ID); err != nil {
			return removed, err
		}
		removed++
	}

	events, err := catalog.TimelineForCase(ctx, tx, m.ID)
	if err != nil {
		return removed, err
	}
	for _, e := range events {
		if err := engine.DeleteItem(ctx, tx, catalog.Timeline, e.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
