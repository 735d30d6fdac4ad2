package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/MartinPaviot/Nareo-sub004/internal/domain"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/dbctx"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
)

type CourseRepo interface {
	Create(dbc dbctx.Context, courses []*types.Course) ([]*types.Course, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Course, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Course, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsIfQuizStatus applies updates only while quiz_status is one of
	// allowed, or while it is "generating" and the row was last touched before
	// staleBefore. It reports whether the row changed.
	UpdateFieldsIfQuizStatus(dbc dbctx.Context, id uuid.UUID, allowed []string, staleBefore *time.Time, updates map[string]interface{}) (bool, error)
	IncrementGenerated(dbc dbctx.Context, id uuid.UUID, delta int) error
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	return &courseRepo{db: db, log: baseLog.With("repo", "CourseRepo")}
}

func (r *courseRepo) Create(dbc dbctx.Context, courses []*types.Course) ([]*types.Course, error) {
	if len(courses) == 0 {
		return []*types.Course{}, nil
	}
	if err := dbc.Conn(r.db).Create(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *courseRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Course, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var course types.Course
	if err := dbc.Conn(r.db).
		Where("id = ?", id).
		Limit(1).
		Find(&course).Error; err != nil {
		return nil, err
	}
	if course.ID == uuid.Nil {
		return nil, nil
	}
	return &course, nil
}

func (r *courseRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Course, error) {
	var out []*types.Course
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *courseRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.Conn(r.db).
		Model(&types.Course{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *courseRepo) UpdateFieldsIfQuizStatus(dbc dbctx.Context, id uuid.UUID, allowed []string, staleBefore *time.Time, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}

	q := dbc.Conn(r.db).
		Model(&types.Course{}).
		Where("id = ?", id)
	switch {
	case len(allowed) > 0 && staleBefore != nil:
		q = q.Where("(quiz_status IN ? OR (quiz_status = ? AND updated_at < ?))", allowed, types.QuizStatusGenerating, *staleBefore)
	case len(allowed) > 0:
		q = q.Where("quiz_status IN ?", allowed)
	case staleBefore != nil:
		q = q.Where("quiz_status = ? AND updated_at < ?", types.QuizStatusGenerating, *staleBefore)
	default:
		return false, nil
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *courseRepo) IncrementGenerated(dbc dbctx.Context, id uuid.UUID, delta int) error {
	if id == uuid.Nil || delta == 0 {
		return nil
	}
	return dbc.Conn(r.db).
		Model(&types.Course{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"quiz_questions_generated": gorm.Expr("quiz_questions_generated + ?", delta),
			"updated_at":               time.Now(),
		}).Error
}
