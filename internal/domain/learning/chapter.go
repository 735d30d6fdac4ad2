package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Chapter struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID   uuid.UUID `gorm:"type:uuid;not null;index:idx_chapter_course_order,priority:1" json:"course_id"`
	OrderIndex int       `gorm:"column:order_index;not null;index:idx_chapter_course_order,priority:2" json:"order_index"`
	Title      string    `gorm:"column:title" json:"title"`
	SourceText string    `gorm:"column:source_text;type:text" json:"-"`

	Status         string `gorm:"column:status;not null;default:'pending'" json:"status"`
	QuizStatus     string `gorm:"column:quiz_status;not null;default:'pending';index" json:"quiz_status"`
	ItemsGenerated int    `gorm:"column:items_generated;not null;default:0" json:"items_generated"`
	ErrorMessage   string `gorm:"column:error_message;type:text" json:"error_message,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Chapter) TableName() string { return "chapter" }

func (c *Chapter) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
