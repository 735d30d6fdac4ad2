package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MartinPaviot/Nareo-sub004/internal/data/repos"
	types "github.com/MartinPaviot/Nareo-sub004/internal/domain"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/apierr"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/dbctx"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
	"github.com/MartinPaviot/Nareo-sub004/internal/srs"
)

type ReviewService interface {
	// Submit records one review of a flashcard and returns its new schedule.
	// The state is created on the first review.
	Submit(ctx context.Context, userID, flashcardID uuid.UUID, rating string) (*types.ReviewState, error)
	Due(ctx context.Context, userID uuid.UUID, courseID *uuid.UUID, limit int) ([]*types.ReviewState, error)
}

type reviewService struct {
	db      *gorm.DB
	log     *logger.Logger
	courses repos.CourseRepo
	items   repos.GeneratedItemRepo
	reviews repos.ReviewStateRepo
	now     func() time.Time
}

func NewReviewService(db *gorm.DB, baseLog *logger.Logger, courses repos.CourseRepo, itemRepo repos.GeneratedItemRepo, reviews repos.ReviewStateRepo) ReviewService {
	return &reviewService{
		db:      db,
		log:     baseLog.With("service", "ReviewService"),
		courses: courses,
		items:   itemRepo,
		reviews: reviews,
		now:     time.Now,
	}
}

func (s *reviewService) Submit(ctx context.Context, userID, flashcardID uuid.UUID, rating string) (*types.ReviewState, error) {
	r, err := srs.ParseRating(rating)
	if err != nil {
		if errors.Is(err, srs.ErrInvalidRating) {
			return nil, apierr.Wrap(apierr.ErrInvalidRating, err)
		}
		return nil, err
	}
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user id")
	}

	var out *types.ReviewState
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		item, err := s.items.GetByID(dbc, flashcardID)
		if err != nil {
			return err
		}
		if item == nil || item.Kind != types.ItemKindFlashcard {
			return apierr.ErrItemNotFound
		}
		course, err := s.courses.GetByID(dbc, item.CourseID)
		if err != nil {
			return err
		}
		if course == nil || course.UserID != userID {
			return apierr.ErrItemNotFound
		}

		st, err := s.reviews.GetByUserItem(dbc, userID, item.ID)
		if err != nil {
			return err
		}
		var prev *srs.State
		if st != nil {
			p := toSchedule(st)
			prev = &p
		} else {
			st = &types.ReviewState{UserID: userID, ItemID: item.ID, CourseID: item.CourseID}
		}

		next := srs.NextSchedule(prev, r, s.now())
		applySchedule(st, next)
		if err := s.reviews.Upsert(dbc, st); err != nil {
			return fmt.Errorf("save review state: %w", err)
		}
		out = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("review recorded", "item_id", flashcardID, "rating", r, "interval_days", out.IntervalDays, "mastery", out.Mastery)
	return out, nil
}

func (s *reviewService) Due(ctx context.Context, userID uuid.UUID, courseID *uuid.UUID, limit int) ([]*types.ReviewState, error) {
	return s.reviews.ListDue(dbctx.Context{Ctx: ctx}, userID, courseID, s.now(), limit)
}

func toSchedule(st *types.ReviewState) srs.State {
	out := srs.State{
		EaseFactor:     st.EaseFactor,
		IntervalDays:   st.IntervalDays,
		NextReviewAt:   st.NextReviewAt,
		ReviewCount:    st.ReviewCount,
		CorrectCount:   st.CorrectCount,
		IncorrectCount: st.IncorrectCount,
		Mastery:        srs.Mastery(st.Mastery),
	}
	if st.LastReviewedAt != nil {
		out.LastReviewedAt = *st.LastReviewedAt
	}
	return out
}

func applySchedule(st *types.ReviewState, s srs.State) {
	reviewed := s.LastReviewedAt
	st.EaseFactor = s.EaseFactor
	st.IntervalDays = s.IntervalDays
	st.NextReviewAt = s.NextReviewAt
	st.LastReviewedAt = &reviewed
	st.ReviewCount = s.ReviewCount
	st.CorrectCount = s.CorrectCount
	st.IncorrectCount = s.IncorrectCount
	st.Mastery = string(s.Mastery)
}
