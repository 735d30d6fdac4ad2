package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/MartinPaviot/Nareo-sub004/internal/domain"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/dbctx"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
)

type ReviewStateRepo interface {
	GetByUserItem(dbc dbctx.Context, userID, itemID uuid.UUID) (*types.ReviewState, error)
	Upsert(dbc dbctx.Context, state *types.ReviewState) error
	ListDue(dbc dbctx.Context, userID uuid.UUID, courseID *uuid.UUID, now time.Time, limit int) ([]*types.ReviewState, error)
}

type reviewStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReviewStateRepo(db *gorm.DB, baseLog *logger.Logger) ReviewStateRepo {
	return &reviewStateRepo{db: db, log: baseLog.With("repo", "ReviewStateRepo")}
}

func (r *reviewStateRepo) GetByUserItem(dbc dbctx.Context, userID, itemID uuid.UUID) (*types.ReviewState, error) {
	if userID == uuid.Nil || itemID == uuid.Nil {
		return nil, nil
	}
	var st types.ReviewState
	if err := dbc.Conn(r.db).
		Where("user_id = ? AND item_id = ?", userID, itemID).
		Limit(1).
		Find(&st).Error; err != nil {
		return nil, err
	}
	if st.ID == uuid.Nil {
		return nil, nil
	}
	return &st, nil
}

// Upsert updates a loaded state in place and inserts a new one, merging into
// an existing (user, item) row if a concurrent review created it first.
func (r *reviewStateRepo) Upsert(dbc dbctx.Context, state *types.ReviewState) error {
	if state == nil || state.UserID == uuid.Nil || state.ItemID == uuid.Nil {
		return nil
	}
	state.UpdatedAt = time.Now()
	if state.ID != uuid.Nil {
		res := dbc.Conn(r.db).
			Model(&types.ReviewState{}).
			Where("id = ?", state.ID).
			Updates(map[string]interface{}{
				"ease_factor":      state.EaseFactor,
				"interval_days":    state.IntervalDays,
				"next_review_at":   state.NextReviewAt,
				"last_reviewed_at": state.LastReviewedAt,
				"review_count":     state.ReviewCount,
				"correct_count":    state.CorrectCount,
				"incorrect_count":  state.IncorrectCount,
				"mastery":          state.Mastery,
				"updated_at":       state.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
	} else {
		state.ID = uuid.New()
	}
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"ease_factor",
				"interval_days",
				"next_review_at",
				"last_reviewed_at",
				"review_count",
				"correct_count",
				"incorrect_count",
				"mastery",
				"updated_at",
			}),
		}).
		Create(state).Error
}

func (r *reviewStateRepo) ListDue(dbc dbctx.Context, userID uuid.UUID, courseID *uuid.UUID, now time.Time, limit int) ([]*types.ReviewState, error) {
	var out []*types.ReviewState
	if userID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := dbc.Conn(r.db).
		Where("user_id = ? AND next_review_at <= ?", userID, now)
	if courseID != nil && *courseID != uuid.Nil {
		q = q.Where("course_id = ?", *courseID)
	}
	if err := q.
		Order("next_review_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
