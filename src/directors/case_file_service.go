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

// CaseFileService maintains each matter's file tree. Every item's parent is
// either the root or a folder of the same matter, and folders never contain
// themselves.
type CaseFileService struct {
	db     *engine.Database
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewCaseFileService(db *engine.Database, logger *zap.SugaredLogger) *CaseFileService {
	return &CaseFileService{db: db, logger: logger, now: time.Now}
}

func (s *CaseFileService) CreateFolder(ctx context.Context, caseID, parentID, name string) (*models.CaseFile, error) {
	return s.create(ctx, models.CaseFile{
		CaseID:   caseID,
		ParentID: parentID,
		ItemType: models.ItemFolder,
		Name:     name,
	})
}

func (s *CaseFileService) CreateFile(ctx context.Context, caseID, parentID, name, fileType string, size int64) (*models.CaseFile, error) {
	return s.create(ctx, models.CaseFile{
		CaseID:   caseID,
		ParentID: parentID,
		ItemType: models.ItemFile,
		Name:     name,
		FileType: fileType,
		FileSize: size,
	})
}

func (s *CaseFileService) create(ctx context.Context, f models.CaseFile) (*models.CaseFile, error) {
	f.ID = helpers.GenerateUUID()
	now := s.now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	err := s.db.RunInTransaction(ctx, func(tx *engine.Tx) error {
		if err := checkParent(ctx, tx, f.CaseID, f.ParentID); err != nil {
			return err
		}
		_, err := engine.AddItem(ctx, tx, catalog.CaseFiles, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debugw("Created case file item", "id", f.ID, "caseId", f.CaseID, "type", f.ItemType)
	return &f, nil
}

// Children lists the items directly under parentID. Use models.RootParentID
// for the top level.
func (s *CaseFileService) Children(ctx context.Context, caseID, parentID string) ([]models.CaseFile, error) {
	return catalog.CaseFileChildren(ctx, s.db, caseID, parentID)
}

func (s *CaseFileService) Rename(ctx context.Context, id, name string) (*models.CaseFile, error) {
	f, err := engine.UpdateItem(ctx, s.db, catalog.CaseFiles, id, func(f *models.CaseFile) error {
		f.Name = name
		f.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("case file %s: %w", id, ErrNotFound)
	}
	return f, nil
}

// Move reparents an item within its matter. Moving a folder under itself or
// one of its descendants fails with ErrCycle.
func (s *CaseFileService) Move(ctx context.Context, id, newParentID string) (*models.CaseFile, error) {
	var moved *models.CaseFile
	err := s.db.RunInTransaction(ctx, func(tx *engine.Tx) error {
		f, err := engine.GetItem(ctx, tx, catalog.CaseFiles, id)
		if err != nil {
			return err
		}
		if f == nil {
			return fmt.Errorf("case file %s: %w", id, ErrNotFound)
		}
		if err := checkParent(ctx, tx, f.CaseID, newParentID); err != nil {
			return err
		}
		ancestors, err := ancestry(ctx, tx, newParentID)
		if err != nil {
			return err
		}
		for _, a := range ancestors {
			if a.ID == id {
				return fmt.Errorf("move %s under %s: %w", id, newParentID, ErrCycle)
			}
		}

		f.ParentID = newParentID
		f.UpdatedAt = s.now().UTC()
		if _, err := engine.PutItem(ctx, tx, catalog.CaseFiles, *f); err != nil {
			return err
		}
		moved = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debugw("Moved case file item", "id", id, "parentId", newParentID)
	return moved, nil
}

// Delete removes an item and, for folders, everything beneath it. Deleting a
// missing item is a no-op.
func (s *CaseFileService) Delete(ctx context.Context, id string) error {
	removed := 0
	err := s.db.RunInTransaction(ctx, func(tx *engine.Tx) error {
		f, err := engine.GetItem(ctx, tx, catalog.CaseFiles, id)
		if err != nil || f == nil {
			return err
		}
		queue := []models.CaseFile{*f}
		for len(queue) > 0 {
			item := queue[0]
			queue = queue[1:]
			if item.IsFolder() {
				children, err := catalog.CaseFileChildren(ctx, tx, item.CaseID, item.ID)
				if err != nil {
					return err
				}
				queue = append(queue, children...)
			}
			if err := engine.DeleteItem(ctx, tx, catalog.CaseFiles, item.ID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debugw("Deleted case file item", "id", id, "removed", removed)
	return nil
}

// Path returns the chain of items from the top level down to id.
func (s *CaseFileService) Path(ctx context.Context, id string) ([]models.CaseFile, error) {
	chain, err := ancestry(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("case file %s: %w", id, ErrNotFound)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// checkParent accepts the root or an existing folder of the same matter.
func checkParent(ctx context.Context, scope engine.Scope, caseID, parentID string) error {
	if parentID == models.RootParentID {
		return nil
	}
	parent, err := engine.GetItem(ctx, scope, catalog.CaseFiles, parentID)
	if err != nil {
		return err
	}
	switch {
	case parent == nil:
		return fmt.Errorf("parent %s does not exist: %w", parentID, ErrInvalidParent)
	case parent.CaseID != caseID:
		return fmt.Errorf("parent %s belongs to another matter: %w", parentID, ErrInvalidParent)
	case !parent.IsFolder():
		return fmt.Errorf("parent %s is not a folder: %w", parentID, ErrInvalidParent)
	}
	return nil
}

// ancestry walks from id up to the top level, id first. A stored loop ends
// the walk with ErrCycle.
func ancestry(ctx context.Context, scope engine.Scope, id string) ([]models.CaseFile, error) {
	var chain []models.CaseFile
	seen := make(map[string]bool)
	for id != models.RootParentID {
		if seen[id] {
			return nil, fmt.Errorf("case file %s: %w", id, ErrCycle)
		}
		seen[id] = true
		f, err := engine.GetItem(ctx, scope, catalog.CaseFiles, id)
		if err != nil {
			return nil, err
		}
		if f == nil {
			break
		}
		chain = append(chain, *f)
		id = f.ParentID
	}
	return chain, nil
}
