package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Step is one entry of a workflow's ordered step list.
type Step struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	Description         string `json:"description"`
	Assignee            string `json:"assignee"`
	TimeRequiredMinutes int    `json:"time_required_minutes"`
	Position            int    `json:"position"`
}

// Steps is stored as a jsonb array.
type Steps []Step

// Value implements the driver.Valuer interface
func (s Steps) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (s *Steps) Scan(value any) error {
	if value == nil {
		*s = Steps{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("unsupported type for Steps")
	}
}

// Normalize assigns positions in slice order and ids to steps missing one.
func (s Steps) Normalize() Steps {
	out := make(Steps, len(s))
	for i, step := range s {
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		step.Position = i
		out[i] = step
	}
	return out
}

// Workflow is a versioned, ordered list of steps owned by a company.
type Workflow struct {
	ID          uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string      `gorm:"column:name;not null" json:"name"`
	Description string      `gorm:"column:description" json:"description"`
	Steps       Steps       `gorm:"column:steps;type:jsonb;not null" json:"steps"`
	CompanyID   string      `gorm:"column:company_id;not null" json:"company_id"`
	CreatedBy   string      `gorm:"column:created_by;not null" json:"created_by"`
	AccessLevel AccessLevel `gorm:"column:access_level;not null;default:'user'" json:"access_level"`
	Version     int         `gorm:"column:version;not null;default:1" json:"version"`
	IsImproved  bool        `gorm:"column:is_improved" json:"is_improved"`
	OriginalID  *uuid.UUID  `gorm:"type:uuid;column:original_id" json:"original_id,omitempty"`
	IsCompleted bool        `gorm:"column:is_completed" json:"is_completed"`
	CompletedAt *time.Time  `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for the Workflow model
func (Workflow) TableName() string {
	return "workflows"
}

// Snapshot captures the full record for the history log.
func (w *Workflow) Snapshot() JSONB {
	snap := JSONB{
		"id":           w.ID.String(),
		"name":         w.Name,
		"description":  w.Description,
		"steps":        []Step(w.Steps),
		"company_id":   w.CompanyID,
		"created_by":   w.CreatedBy,
		"access_level": string(w.AccessLevel),
		"version":      w.Version,
		"is_improved":  w.IsImproved,
		"is_completed": w.IsCompleted,
		"updated_at":   w.UpdatedAt,
	}
	if w.OriginalID != nil {
		snap["original_id"] = w.OriginalID.String()
	}
	if w.CompletedAt != nil {
		snap["completed_at"] = *w.CompletedAt
	}
	return snap
}

// Clone returns a deep copy so callers can build a patched record without
// aliasing the stored one.
func (w *Workflow) Clone() *Workflow {
	c := *w
	c.Steps = append(Steps(nil), w.Steps...)
	if w.OriginalID != nil {
		id := *w.OriginalID
		c.OriginalID = &id
	}
	if w.CompletedAt != nil {
		t := *w.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// WorkflowHistory is one append-only audit row per mutating operation.
type WorkflowHistory struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	WorkflowID    uuid.UUID  `gorm:"type:uuid;column:workflow_id;not null" json:"workflow_id"`
	ChangedBy     string     `gorm:"column:changed_by;not null" json:"changed_by"`
	ChangeType    ChangeType `gorm:"column:change_type;not null" json:"change_type"`
	PreviousState JSONB      `gorm:"column:previous_state;type:jsonb" json:"previous_state"`
	NewState      JSONB      `gorm:"column:new_state;type:jsonb" json:"new_state"`
	Timestamp     time.Time  `gorm:"column:changed_at;not null" json:"timestamp"`
}

// TableName specifies the table name for the WorkflowHistory model
func (WorkflowHistory) TableName() string {
	return "workflow_history"
}
