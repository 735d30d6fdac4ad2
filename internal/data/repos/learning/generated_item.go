package learning

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/MartinPaviot/Nareo-sub004/internal/domain"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/dbctx"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
)

// ItemScope selects the items of a course, optionally narrowed to one chapter.
type ItemScope struct {
	CourseID  uuid.UUID
	ChapterID *uuid.UUID
	Kind      string
}

type GeneratedItemRepo interface {
	Create(dbc dbctx.Context, items []*types.GeneratedItem) ([]*types.GeneratedItem, error)
	CreateConcepts(dbc dbctx.Context, links []*types.ItemConcept) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GeneratedItem, error)
	List(dbc dbctx.Context, scope ItemScope) ([]*types.GeneratedItem, error)
	Count(dbc dbctx.Context, scope ItemScope) (int64, error)
	// DeleteScope removes the items of scope together with their concept
	// links and review states. Returns the number of items removed.
	DeleteScope(dbc dbctx.Context, scope ItemScope) (int64, error)
}

type generatedItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGeneratedItemRepo(db *gorm.DB, baseLog *logger.Logger) GeneratedItemRepo {
	return &generatedItemRepo{db: db, log: baseLog.With("repo", "GeneratedItemRepo")}
}

func (r *generatedItemRepo) Create(dbc dbctx.Context, items []*types.GeneratedItem) ([]*types.GeneratedItem, error) {
	if len(items) == 0 {
		return []*types.GeneratedItem{}, nil
	}
	if err := dbc.Conn(r.db).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *generatedItemRepo) CreateConcepts(dbc dbctx.Context, links []*types.ItemConcept) error {
	if len(links) == 0 {
		return nil
	}
	return dbc.Conn(r.db).Create(&links).Error
}

func (r *generatedItemRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GeneratedItem, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var item types.GeneratedItem
	if err := dbc.Conn(r.db).
		Where("id = ?", id).
		Limit(1).
		Find(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == uuid.Nil {
		return nil, nil
	}
	return &item, nil
}

func (r *generatedItemRepo) scoped(dbc dbctx.Context, scope ItemScope) *gorm.DB {
	q := dbc.Conn(r.db).
		Model(&types.GeneratedItem{}).
		Where("course_id = ?", scope.CourseID)
	if scope.ChapterID != nil && *scope.ChapterID != uuid.Nil {
		q = q.Where("chapter_id = ?", *scope.ChapterID)
	}
	if scope.Kind != "" {
		q = q.Where("kind = ?", scope.Kind)
	}
	return q
}

// List returns items in insertion order.
func (r *generatedItemRepo) List(dbc dbctx.Context, scope ItemScope) ([]*types.GeneratedItem, error) {
	var out []*types.GeneratedItem
	if scope.CourseID == uuid.Nil {
		return out, nil
	}
	if err := r.scoped(dbc, scope).
		Order("created_at ASC").
		Order("position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *generatedItemRepo) Count(dbc dbctx.Context, scope ItemScope) (int64, error) {
	if scope.CourseID == uuid.Nil {
		return 0, nil
	}
	var n int64
	if err := r.scoped(dbc, scope).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *generatedItemRepo) DeleteScope(dbc dbctx.Context, scope ItemScope) (int64, error) {
	if scope.CourseID == uuid.Nil {
		return 0, nil
	}
	var deleted int64
	err := dbc.Conn(r.db).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		var ids []uuid.UUID
		if err := r.scoped(inner, scope).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := txx.Where("item_id IN ?", ids).Delete(&types.ItemConcept{}).Error; err != nil {
			return err
		}
		if err := txx.Where("item_id IN ?", ids).Delete(&types.ReviewState{}).Error; err != nil {
			return err
		}
		res := txx.Where("id IN ?", ids).Delete(&types.GeneratedItem{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
