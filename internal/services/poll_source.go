package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/MartinPaviot/Nareo-sub004/internal/data/repos"
	types "github.com/MartinPaviot/Nareo-sub004/internal/domain"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/dbctx"
	"github.com/MartinPaviot/Nareo-sub004/internal/realtime"
)

// repoPollSource reads generation progress straight from storage for the
// poll bridge.
type repoPollSource struct {
	courses repos.CourseRepo
	items   repos.GeneratedItemRepo
	jobRuns repos.JobRunRepo
}

func NewPollSource(courses repos.CourseRepo, itemRepo repos.GeneratedItemRepo, jobRuns repos.JobRunRepo) realtime.PollSource {
	return &repoPollSource{courses: courses, items: itemRepo, jobRuns: jobRuns}
}

func (s *repoPollSource) Progress(ctx context.Context, courseID uuid.UUID) (*types.CourseProgress, error) {
	c, err := s.courses.GetByID(dbctx.Context{Ctx: ctx}, courseID)
	if err != nil || c == nil {
		return nil, err
	}
	return progressOf(ctx, s.jobRuns, c)
}

func (s *repoPollSource) Items(ctx context.Context, courseID uuid.UUID) ([]*types.GeneratedItem, error) {
	return s.items.List(dbctx.Context{Ctx: ctx}, repos.ItemScope{CourseID: courseID})
}

// progressOf projects c and flags a quiz_generate job that is waiting for a
// worker. Until the worker moves the course to "generating", the stored
// status belongs to the previous run.
func progressOf(ctx context.Context, jobRuns repos.JobRunRepo, c *types.Course) (*types.CourseProgress, error) {
	p := c.Progress()
	if c.QuizStatus == types.QuizStatusGenerating || jobRuns == nil {
		return &p, nil
	}
	queued, err := jobRuns.ExistsRunnable(dbctx.Context{Ctx: ctx}, JobTypeQuizGenerate, EntityTypeCourse, &c.ID)
	if err != nil {
		return nil, err
	}
	p.Queued = queued
	return &p, nil
}
