// Package catalog declares MediatorPro's collections and indexes, and the
// query helpers page code uses instead of naming indexes directly.
//
// Version history:
//
//	1: matters, notes, contacts, documents, tasks
//	2: caseFiles (by-parent), timeline
//	3: matters.by-case-file-number, caseFiles.by-case
package catalog

import (
	"mediatorpro/src/engine"
	"mediatorpro/src/models"
)

// Schema holds every collection below. Declarations are append-only: a new
// collection or index gets a new version number.
var Schema = engine.NewSchema()

var (
	Matters   = engine.DefineCollection[models.Matter](Schema, "matters", 1)
	Notes     = engine.DefineCollection[models.Note](Schema, "notes", 1)
	Contacts  = engine.DefineCollection[models.Contact](Schema, "contacts", 1)
	Documents = engine.DefineCollection[models.Document](Schema, "documents", 1)
	Tasks     = engine.DefineCollection[models.Task](Schema, "tasks", 1)
	CaseFiles = engine.DefineCollection[models.CaseFile](Schema, "caseFiles", 2)
	Timeline  = engine.DefineCollection[models.TimelineEvent](Schema, "timeline", 2)
)

// ParentKey is the key of the caseFiles by-parent index. The order of the
// parts is [caseId, parentId] and must not change.
type ParentKey struct {
	CaseID   string
	ParentID string
}

var (
	MattersByStatusIndex         = engine.DefineFieldIndex(Matters, "by-status", 1, "status")
	MattersByCaseFileNumberIndex = engine.DefineFieldIndex(Matters, "by-case-file-number", 3, "caseFileNumber")

	NotesByCaseIndex = engine.DefineFieldIndex(Notes, "by-case", 1, "caseFileNumber")

	ContactsByNameIndex = engine.DefineFieldIndex(Contacts, "by-name", 1, "name")

	DocumentsByCaseIndex = engine.DefineFieldIndex(Documents, "by-case", 1, "caseId")
	DocumentsByTypeIndex = engine.DefineFieldIndex(Documents, "by-type", 1, "type")

	TasksByStatusIndex  = engine.DefineFieldIndex(Tasks, "by-status", 1, "status")
	TasksByDueDateIndex = engine.DefineFieldIndex(Tasks, "by-due-date", 1, "dueDate")

	CaseFilesByParentIndex = engine.DefineIndex(CaseFiles, "by-parent", 2,
		func(k ParentKey) []any { return []any{k.CaseID, k.ParentID} },
		"caseId", "parentId")
	CaseFilesByCaseIndex = engine.DefineFieldIndex(CaseFiles, "by-case", 3, "caseId")

	TimelineByCaseIndex = engine.DefineFieldIndex(Timeline, "by-case", 2, "caseId")
	TimelineByDateIndex = engine.DefineFieldIndex(Timeline, "by-date", 2, "date")
)

// LatestVersion is the schema version a fresh database is opened at.
func LatestVersion() int {
	return Schema.LatestVersion()
}
