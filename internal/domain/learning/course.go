package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Course struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Title    string `gorm:"column:title;not null" json:"title"`
	Language string `gorm:"column:language;not null;default:'en'" json:"language"`

	// Document extraction lifecycle.
	Status string `gorm:"column:status;not null;default:'pending';index" json:"status"`

	// Generation progress record. Written only by the orchestrator.
	QuizStatus             string         `gorm:"column:quiz_status;not null;default:'pending';index" json:"quiz_status"`
	QuizProgress           int            `gorm:"column:quiz_progress;not null;default:0" json:"quiz_progress"`
	QuizQuestionsGenerated int            `gorm:"column:quiz_questions_generated;not null;default:0" json:"quiz_questions_generated"`
	QuizTotalQuestions     int            `gorm:"column:quiz_total_questions;not null;default:0" json:"quiz_total_questions"`
	QuizCurrentStep        string         `gorm:"column:quiz_current_step" json:"quiz_current_step,omitempty"`
	QuizErrorMessage       string         `gorm:"column:quiz_error_message;type:text" json:"quiz_error_message,omitempty"`
	QuizConfig             datatypes.JSON `gorm:"column:quiz_config;type:jsonb" json:"quiz_config,omitempty"`
	QuizStartedAt          *time.Time     `gorm:"column:quiz_started_at" json:"quiz_started_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Course) TableName() string { return "course" }

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Progress is the read-only projection streamed to observers.
type Progress struct {
	CourseID       uuid.UUID `json:"course_id"`
	QuizStatus     string    `json:"quiz_status"`
	Progress       int       `json:"progress"`
	Step           string    `json:"step"`
	ItemsGenerated int       `json:"items_generated"`
	TotalItems     int       `json:"total_items"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	// Queued is set while a queued run has not started yet; the other fields
	// still describe the previous run.
	Queued bool `json:"queued,omitempty"`
}

func (c *Course) Progress() Progress {
	return Progress{
		CourseID:       c.ID,
		QuizStatus:     c.QuizStatus,
		Progress:       c.QuizProgress,
		Step:           c.QuizCurrentStep,
		ItemsGenerated: c.QuizQuestionsGenerated,
		TotalItems:     c.QuizTotalQuestions,
		ErrorMessage:   c.QuizErrorMessage,
	}
}
