package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GeneratedItem is one accepted question or flashcard. Rows are created once
// per accepted result and only removed by an explicit regenerate.
type GeneratedItem struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"course_id"`
	ChapterID *uuid.UUID `gorm:"type:uuid;index" json:"chapter_id,omitempty"`

	Kind        string         `gorm:"column:kind;not null;index" json:"kind"`
	Type        string         `gorm:"column:type;not null" json:"type"`
	Prompt      string         `gorm:"column:prompt;type:text;not null" json:"prompt"`
	Answer      string         `gorm:"column:answer;type:text" json:"answer,omitempty"`
	Options     datatypes.JSON `gorm:"column:options;type:jsonb" json:"options,omitempty"`
	Explanation string         `gorm:"column:explanation;type:text" json:"explanation,omitempty"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Position    int            `gorm:"column:position;not null;default:0" json:"position"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (GeneratedItem) TableName() string { return "generated_item" }

func (g *GeneratedItem) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

type ItemConcept struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"item_id"`
	CourseID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"course_id"`
	ChapterID *uuid.UUID `gorm:"type:uuid;index" json:"chapter_id,omitempty"`
	Concept   string     `gorm:"column:concept;not null;index" json:"concept"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
}

func (ItemConcept) TableName() string { return "item_concept" }

func (ic *ItemConcept) BeforeCreate(tx *gorm.DB) error {
	if ic.ID == uuid.Nil {
		ic.ID = uuid.New()
	}
	return nil
}
