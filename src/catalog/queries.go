package catalog

import (
	"context"
	"sort"
	"time"

	"mediatorpro/src/engine"
	"mediatorpro/src/models"
)

// DateLayout is the layout of indexed calendar dates.
const DateLayout = "2006-01-02"

func NotesByCase(ctx context.Context, s engine.Scope, caseFileNumber string) ([]models.Note, error) {
	return engine.GetItemsByIndex(ctx, s, NotesByCaseIndex, engine.Only(caseFileNumber))
}

func DocumentsByCase(ctx context.Context, s engine.Scope, caseID string) ([]models.Document, error) {
	return engine.GetItemsByIndex(ctx, s, DocumentsByCaseIndex, engine.Only(caseID))
}

func DocumentsByType(ctx context.Context, s engine.Scope, docType string) ([]models.Document, error) {
	return engine.GetItemsByIndex(ctx, s, DocumentsByTypeIndex, engine.Only(docType))
}

func TasksByStatus(ctx context.Context, s engine.Scope, status models.TaskStatus) ([]models.Task, error) {
	return engine.GetItemsByIndex(ctx, s, TasksByStatusIndex, engine.Only(string(status)))
}

// TasksByDueDate returns tasks whose due date falls in r, earliest first.
func TasksByDueDate(ctx context.Context, s engine.Scope, r engine.KeyRange[string]) ([]models.Task, error) {
	return engine.GetItemsByIndex(ctx, s, TasksByDueDateIndex, r)
}

// OverdueTasks returns the tasks due before now's calendar day that are not
// completed. Due dates are either calendar dates or RFC 3339 timestamps; a
// timestamp counts by the calendar day written in it, so one due later today
// is not overdue.
func OverdueTasks(ctx context.Context, s engine.Scope, now time.Time) ([]models.Task, error) {
	due, err := TasksByDueDate(ctx, s, engine.UpperBound(now.Format(DateLayout), true))
	if err != nil {
		return nil, err
	}
	overdue := due[:0]
	for _, t := range due {
		if t.DueDate != "" && t.Status != models.TaskCompleted {
			overdue = append(overdue, t)
		}
	}
	return overdue, nil
}

func MattersByStatus(ctx context.Context, s engine.Scope, status models.MatterStatus) ([]models.Matter, error) {
	return engine.GetItemsByIndex(ctx, s, MattersByStatusIndex, engine.Only(string(status)))
}

// MatterByCaseFileNumber returns the matter filed under number, or nil.
func MatterByCaseFileNumber(ctx context.Context, s engine.Scope, number string) (*models.Matter, error) {
	matters, err := engine.GetItemsByIndex(ctx, s, MattersByCaseFileNumberIndex, engine.Only(number))
	if err != nil || len(matters) == 0 {
		return nil, err
	}
	return &matters[0], nil
}

func ContactsByName(ctx context.Context, s engine.Scope, name string) ([]models.Contact, error) {
	return engine.GetItemsByIndex(ctx, s, ContactsByNameIndex, engine.Only(name))
}

// TimelineForCase returns a matter's events, newest first. The by-case index
// returns them in key order, so they are sorted here.
func TimelineForCase(ctx context.Context, s engine.Scope, caseID string) ([]models.TimelineEvent, error) {
	events, err := engine.GetItemsByIndex(ctx, s, TimelineByCaseIndex, engine.Only(caseID))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Date != events[j].Date {
			return events[i].Date > events[j].Date
		}
		return events[i].ID > events[j].ID
	})
	return events, nil
}

// CaseFileChildren returns the direct children of parentID within caseID.
// Pass models.RootParentID for the top level.
func CaseFileChildren(ctx context.Context, s engine.Scope, caseID, parentID string) ([]models.CaseFile, error) {
	return engine.GetItemsByIndex(ctx, s, CaseFilesByParentIndex, engine.Only(ParentKey{CaseID: caseID, ParentID: parentID}))
}

func CaseFilesForCase(ctx context.Context, s engine.Scope, caseID string) ([]models.CaseFile, error) {
	return engine.GetItemsByIndex(ctx, s, CaseFilesByCaseIndex, engine.Only(caseID))
}
