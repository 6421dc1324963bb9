package models

import (
	"time"
)

// GORM-compatible models for the activity log and export job tables.

// ActivityLogGorm represents the activity_logs table with GORM tags.
type ActivityLogGorm struct {
	ID         uint      `gorm:"primaryKey;column:id" json:"id"`
	UserID     int       `gorm:"column:user_id;not null" json:"user_id"`
	EntityType string    `gorm:"column:entity_type;not null" json:"entity_type"` // lead, quote, invoice, payment, material_order, work_order, user
	EntityID   int       `gorm:"column:entity_id;not null" json:"entity_id"`
	Action     string    `gorm:"column:action;not null" json:"action"` // created, updated, deleted, status_changed, imported_template
	OldValue   *string   `gorm:"column:old_value" json:"old_value,omitempty"`
	NewValue   *string   `gorm:"column:new_value" json:"new_value,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UserName   string    `gorm:"-" json:"user_name,omitempty"`
}

// TableName specifies the table name for ActivityLogGorm.
func (ActivityLogGorm) TableName() string {
	return "activity_logs"
}

// ExportJobGorm represents the export_jobs table with GORM tags.
type ExportJobGorm struct {
	ID          uint       `gorm:"primaryKey;column:id" json:"id"`
	JobType     string     `gorm:"column:job_type;not null" json:"job_type"` // quotes_xlsx, orders_xlsx, leads_csv
	Status      string     `gorm:"column:status;not null;default:'pending'" json:"status"`
	RequestedBy int        `gorm:"column:requested_by;not null" json:"requested_by"`
	FilePath    *string    `gorm:"column:file_path" json:"file_path,omitempty"`
	Error       *string    `gorm:"column:error" json:"error,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

// TableName specifies the table name for ExportJobGorm.
func (ExportJobGorm) TableName() string {
	return "export_jobs"
}
