package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/MartinPaviot/Nareo-sub004/internal/data/repos"
	"github.com/MartinPaviot/Nareo-sub004/internal/domain"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/apierr"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/dbctx"
)

// restartable lists the statuses a new run may start from. A "generating"
// course is only taken over once it is stale.
var restartable = []string{
	domain.QuizStatusPending,
	domain.QuizStatusReady,
	domain.QuizStatusPartial,
	domain.QuizStatusFailed,
}

// Preflight resolves the chapters a run would generate for and checks that
// the run may start, without writing anything or calling the backend.
func (o *Orchestrator) Preflight(ctx context.Context, req Request) ([]*domain.Chapter, error) {
	_, chapters, err := o.plan(ctx, req)
	return chapters, err
}

func (o *Orchestrator) plan(ctx context.Context, req Request) (*domain.Course, []*domain.Chapter, error) {
	dbc := dbctx.Context{Ctx: ctx}
	course, err := o.courses.GetByID(dbc, req.CourseID)
	if err != nil {
		return nil, nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, nil, apierr.ErrCourseNotFound
	}

	var candidates []*domain.Chapter
	if req.ChapterID != nil {
		ch, err := o.chapters.GetByID(dbc, *req.ChapterID)
		if err != nil {
			return nil, nil, fmt.Errorf("load chapter: %w", err)
		}
		if ch == nil || ch.CourseID != course.ID {
			return nil, nil, apierr.ErrChapterNotFound
		}
		candidates = []*domain.Chapter{ch}
	} else {
		candidates, err = o.chapters.ListByCourse(dbc, course.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("list chapters: %w", err)
		}
	}

	chapters := make([]*domain.Chapter, 0, len(candidates))
	for _, ch := range candidates {
		if o.sufficient(ch) {
			chapters = append(chapters, ch)
		}
	}
	if len(chapters) == 0 {
		if req.ChapterID != nil && len(candidates) == 1 {
			n := utf8.RuneCountInString(strings.TrimSpace(candidates[0].SourceText))
			return nil, nil, apierr.Wrap(apierr.ErrInsufficientContent,
				fmt.Errorf("chapter has %d characters of source text; at least %d are required", n, o.opts.MinSourceChars))
		}
		return nil, nil, apierr.ErrInsufficientContent
	}

	if course.QuizStatus == domain.QuizStatusGenerating && !o.stale(course) {
		return nil, nil, apierr.ErrGenerationInProgress
	}
	if !req.Regenerate {
		n, err := o.items.Count(dbc, req.scope())
		if err != nil {
			return nil, nil, fmt.Errorf("count items: %w", err)
		}
		if n > 0 {
			return nil, nil, apierr.ErrAlreadyGenerated
		}
	}
	return course, chapters, nil
}

func (o *Orchestrator) sufficient(ch *domain.Chapter) bool {
	return utf8.RuneCountInString(strings.TrimSpace(ch.SourceText)) >= o.opts.MinSourceChars
}

func (o *Orchestrator) stale(c *domain.Course) bool {
	return c.UpdatedAt.Before(o.opts.Now().Add(-o.opts.StaleAfter))
}

// begin moves the course to "generating", clears the scope when asked to and
// seeds the duplicate corpus with the items that remain.
func (o *Orchestrator) begin(r *run) error {
	now := o.opts.Now()
	staleBefore := now.Add(-o.opts.StaleAfter)
	cfgJSON, err := json.Marshal(r.req.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	var remaining []*domain.GeneratedItem
	err = o.db.WithContext(r.ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: r.ctx, Tx: tx}
		ok, err := o.courses.UpdateFieldsIfQuizStatus(dbc, r.course.ID, restartable, &staleBefore, map[string]interface{}{
			"quiz_status": domain.QuizStatusGenerating,
		})
		if err != nil {
			return fmt.Errorf("claim course: %w", err)
		}
		if !ok {
			return apierr.ErrGenerationInProgress
		}

		if r.req.Regenerate {
			removed, err := o.items.DeleteScope(dbc, r.req.scope())
			if err != nil {
				return fmt.Errorf("clear items: %w", err)
			}
			r.log.Info("cleared previous items", "removed", removed)
			reset := map[string]interface{}{"items_generated": 0, "error_message": ""}
			if r.req.ChapterID != nil {
				err = o.chapters.UpdateFields(dbc, *r.req.ChapterID, reset)
			} else {
				err = o.chapters.UpdateFieldsByCourse(dbc, r.course.ID, reset)
			}
			if err != nil {
				return fmt.Errorf("reset chapters: %w", err)
			}
		}

		remaining, err = o.items.List(dbc, repos.ItemScope{CourseID: r.course.ID})
		if err != nil {
			return fmt.Errorf("list remaining items: %w", err)
		}
		r.existing = len(remaining)
		r.target = r.existing + len(r.chapters)*r.req.Config.TotalPerChapter()

		if err := o.courses.UpdateFields(dbc, r.course.ID, map[string]interface{}{
			"quiz_progress":            0,
			"quiz_current_step":        "Starting",
			"quiz_questions_generated": r.existing,
			"quiz_total_questions":     r.target,
			"quiz_error_message":       "",
			"quiz_config":              datatypes.JSON(cfgJSON),
			"quiz_started_at":          now,
		}); err != nil {
			return fmt.Errorf("reset progress: %w", err)
		}
		for _, ch := range r.chapters {
			if err := o.chapters.UpdateFields(dbc, ch.ID, map[string]interface{}{
				"quiz_status": domain.QuizStatusGenerating,
			}); err != nil {
				return fmt.Errorf("mark chapter: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Items that survive the clear belong to other chapters; new items
	// must not repeat them.
	r.tracker.Seed(displayTexts(remaining), -1)
	return nil
}
