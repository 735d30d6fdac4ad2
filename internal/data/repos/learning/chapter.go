package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/MartinPaviot/Nareo-sub004/internal/domain"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/dbctx"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
)

type ChapterRepo interface {
	Create(dbc dbctx.Context, chapters []*types.Chapter) ([]*types.Chapter, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chapter, error)
	ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.Chapter, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsByCourse(dbc dbctx.Context, courseID uuid.UUID, updates map[string]interface{}) error
	IncrementItems(dbc dbctx.Context, id uuid.UUID, delta int) error
}

type chapterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChapterRepo(db *gorm.DB, baseLog *logger.Logger) ChapterRepo {
	return &chapterRepo{db: db, log: baseLog.With("repo", "ChapterRepo")}
}

func (r *chapterRepo) Create(dbc dbctx.Context, chapters []*types.Chapter) ([]*types.Chapter, error) {
	if len(chapters) == 0 {
		return []*types.Chapter{}, nil
	}
	if err := dbc.Conn(r.db).Create(&chapters).Error; err != nil {
		return nil, err
	}
	return chapters, nil
}

func (r *chapterRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chapter, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var ch types.Chapter
	if err := dbc.Conn(r.db).
		Where("id = ?", id).
		Limit(1).
		Find(&ch).Error; err != nil {
		return nil, err
	}
	if ch.ID == uuid.Nil {
		return nil, nil
	}
	return &ch, nil
}

// ListByCourse returns chapters in reading order.
func (r *chapterRepo) ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.Chapter, error) {
	var out []*types.Chapter
	if courseID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("course_id = ?", courseID).
		Order("order_index ASC").
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chapterRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.Conn(r.db).
		Model(&types.Chapter{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *chapterRepo) UpdateFieldsByCourse(dbc dbctx.Context, courseID uuid.UUID, updates map[string]interface{}) error {
	if courseID == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.Conn(r.db).
		Model(&types.Chapter{}).
		Where("course_id = ?", courseID).
		Updates(updates).Error
}

func (r *chapterRepo) IncrementItems(dbc dbctx.Context, id uuid.UUID, delta int) error {
	if id == uuid.Nil || delta == 0 {
		return nil
	}
	return dbc.Conn(r.db).
		Model(&types.Chapter{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"items_generated": gorm.Expr("items_generated + ?", delta),
			"updated_at":      time.Now(),
		}).Error
}
