package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReviewState is the spaced-repetition schedule of one flashcard for one user.
// Created lazily on the first review.
type ReviewState struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_review_state_user_item,priority:1" json:"user_id"`
	ItemID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_review_state_user_item,priority:2" json:"item_id"`
	CourseID uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`

	EaseFactor     float64    `gorm:"column:ease_factor;not null;default:2.5" json:"ease_factor"`
	IntervalDays   int        `gorm:"column:interval_days;not null;default:0" json:"interval_days"`
	NextReviewAt   time.Time  `gorm:"column:next_review_at;not null;index" json:"next_review_at"`
	LastReviewedAt *time.Time `gorm:"column:last_reviewed_at" json:"last_reviewed_at,omitempty"`
	ReviewCount    int        `gorm:"column:review_count;not null;default:0" json:"review_count"`
	CorrectCount   int        `gorm:"column:correct_count;not null;default:0" json:"correct_count"`
	IncorrectCount int        `gorm:"column:incorrect_count;not null;default:0" json:"incorrect_count"`
	Mastery        string     `gorm:"column:mastery;not null;default:'new';index" json:"mastery"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ReviewState) TableName() string { return "review_state" }

func (r *ReviewState) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
