package models

import (
	"time"
)

type MatterStatus string

const (
	MatterOpen    MatterStatus = "Open"
	MatterPending MatterStatus = "Pending"
	MatterOnHold  MatterStatus = "On Hold"
	MatterSettled MatterStatus = "Settled"
	MatterClosed  MatterStatus = "Closed"
)

// Matter is a mediation case.
type Matter struct {
	ID             string       `json:"id" bson:"id" validate:"required"`
	Title          string       `json:"title" bson:"title" validate:"required"`
	Status         MatterStatus `json:"status" bson:"status" validate:"required"`
	ClientName     string       `json:"clientName" bson:"clientName"`
	CaseFileNumber string       `json:"caseFileNumber" bson:"caseFileNumber"`
	Parties        []Party      `json:"parties" bson:"parties" validate:"dive"`
	Description    string       `json:"description" bson:"description"`
	CreatedAt      time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt" bson:"updatedAt"`
}

func (m Matter) PrimaryKey() string { return m.ID }

// Party is one side of a matter.
type Party struct {
	Name      string `json:"name" bson:"name" validate:"required"`
	Role      string `json:"role" bson:"role"`
	ContactID string `json:"contactId,omitempty" bson:"contactId,omitempty"`
}

// Note is free text attached to a matter through its case file number.
type Note struct {
	ID             string    `json:"id" bson:"id" validate:"required"`
	CaseFileNumber string    `json:"caseFileNumber" bson:"caseFileNumber" validate:"required"`
	Content        string    `json:"content" bson:"content"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (n Note) PrimaryKey() string { return n.ID }

type ContactType string

const (
	ContactPerson       ContactType = "Person"
	ContactOrganization ContactType = "Organization"
)

// Contact is a person or organization.
type Contact struct {
	ID              string      `json:"id" bson:"id" validate:"required"`
	Name            string      `json:"name" bson:"name" validate:"required"`
	Email           string      `json:"email" bson:"email" validate:"omitempty,email"`
	Phone           string      `json:"phone" bson:"phone"`
	Type            ContactType `json:"type" bson:"type"`
	CaseFileNumbers []string    `json:"caseFileNumbers" bson:"caseFileNumbers"`
}

func (c Contact) PrimaryKey() string { return c.ID }

// Document is the metadata of a stored file.
type Document struct {
	ID     string `json:"id" bson:"id" validate:"required"`
	CaseID string `json:"caseId" bson:"caseId"`
	Type   string `json:"type" bson:"type"`
	Name   string `json:"name" bson:"name" validate:"required"`
	Size   int64  `json:"size" bson:"size" validate:"gte=0"`
}

func (d Document) PrimaryKey() string { return d.ID }

type TaskStatus string

const (
	TaskPending    TaskStatus = "Pending"
	TaskInProgress TaskStatus = "In Progress"
	TaskCompleted  TaskStatus = "Completed"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "Low"
	PriorityMedium TaskPriority = "Medium"
	PriorityHigh   TaskPriority = "High"
)

// Task is an actionable to-do. DueDate is an ISO-8601 date so that index
// order is chronological.
type Task struct {
	ID          string       `json:"id" bson:"id" validate:"required"`
	Title       string       `json:"title" bson:"title"`
	Description string       `json:"description" bson:"description"`
	Status      TaskStatus   `json:"status" bson:"status" validate:"required"`
	DueDate     string       `json:"dueDate" bson:"dueDate" validate:"omitempty,datetime=2006-01-02|datetime=2006-01-02T15:04:05Z07:00"`
	Priority    TaskPriority `json:"priority" bson:"priority"`
	CaseTitle   string       `json:"caseTitle" bson:"caseTitle"`
}

func (t Task) PrimaryKey() string { return t.ID }

type CaseFileItemType string

const (
	ItemFile   CaseFileItemType = "file"
	ItemFolder CaseFileItemType = "folder"
)

// RootParentID is the parent of top-level case file items.
const RootParentID = ""

// CaseFile is a file or folder node in a matter's file tree.
type CaseFile struct {
	ID        string           `json:"id" bson:"id" validate:"required"`
	CaseID    string           `json:"caseId" bson:"caseId" validate:"required"`
	ParentID  string           `json:"parentId" bson:"parentId"`
	ItemType  CaseFileItemType `json:"itemType" bson:"itemType" validate:"required,oneof=file folder"`
	Name      string           `json:"name" bson:"name" validate:"required"`
	FileType  string           `json:"fileType,omitempty" bson:"fileType,omitempty"`
	FileSize  int64            `json:"fileSize,omitempty" bson:"fileSize,omitempty" validate:"gte=0"`
	CreatedAt time.Time        `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt" bson:"updatedAt"`
}

func (f CaseFile) PrimaryKey() string { return f.ID }

func (f CaseFile) IsFolder() bool { return f.ItemType == ItemFolder }

// TimelineEvent is a dated entry in a matter's history.
type TimelineEvent struct {
	ID          string `json:"id" bson:"id" validate:"required"`
	CaseID      string `json:"caseId" bson:"caseId" validate:"required"`
	Date        string `json:"date" bson:"date" validate:"required"`
	Title       string `json:"title" bson:"title" validate:"required"`
	Description string `json:"description" bson:"description"`
}

func (e TimelineEvent) PrimaryKey() string { return e.ID }
