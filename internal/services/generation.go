package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MartinPaviot/Nareo-sub004/internal/data/repos"
	types "github.com/MartinPaviot/Nareo-sub004/internal/domain"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/genconfig"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/orchestrator"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/apierr"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/dbctx"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
	"github.com/MartinPaviot/Nareo-sub004/internal/realtime"
)

const (
	JobTypeQuizGenerate = "quiz_generate"
	EntityTypeCourse    = "course"
)

// GenerateInput is what a caller may ask for. Config is normalized, so
// unknown values never fail the request.
type GenerateInput struct {
	ChapterID  *uuid.UUID    `json:"chapter_id,omitempty"`
	Config     genconfig.Raw `json:"config"`
	Regenerate bool          `json:"regenerate,omitempty"`
	Mode       string        `json:"mode,omitempty"`
}

// QuizGeneratePayload is the job_run payload of a quiz_generate job.
type QuizGeneratePayload struct {
	CourseID   uuid.UUID        `json:"course_id"`
	ChapterID  *uuid.UUID       `json:"chapter_id,omitempty"`
	Config     genconfig.Config `json:"config"`
	Regenerate bool             `json:"regenerate,omitempty"`
	Mode       string           `json:"mode,omitempty"`
}

func (p QuizGeneratePayload) Request() orchestrator.Request {
	return orchestrator.Request{
		CourseID:   p.CourseID,
		ChapterID:  p.ChapterID,
		Config:     p.Config,
		Regenerate: p.Regenerate,
		Mode:       orchestrator.ParseMode(p.Mode),
	}
}

func (p QuizGeneratePayload) Map() (map[string]any, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeQuizGeneratePayload reads a payload map back, as stored on job_run.
func DecodeQuizGeneratePayload(m map[string]any) (QuizGeneratePayload, error) {
	var p QuizGeneratePayload
	b, err := json.Marshal(m)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("decode quiz_generate payload: %w", err)
	}
	if p.CourseID == uuid.Nil {
		return p, fmt.Errorf("quiz_generate payload: missing course_id")
	}
	return p, nil
}

type GenerationService interface {
	// Enqueue validates the request like a run would and queues a
	// quiz_generate job for a worker.
	Enqueue(ctx context.Context, userID, courseID uuid.UUID, in GenerateInput) (*types.JobRun, error)
	// Run generates in the calling goroutine, pushing events to sink. Events
	// are mirrored on the course channel so hub subscribers see them too.
	Run(ctx context.Context, userID, courseID uuid.UUID, in GenerateInput, sink realtime.Sink) (*orchestrator.Result, error)
	Status(ctx context.Context, userID, courseID uuid.UUID) (*types.CourseProgress, error)
	Items(ctx context.Context, userID, courseID uuid.UUID, chapterID *uuid.UUID) ([]*types.GeneratedItem, error)
}

type generationService struct {
	db      *gorm.DB
	log     *logger.Logger
	courses repos.CourseRepo
	items   repos.GeneratedItemRepo
	jobRuns repos.JobRunRepo
	jobs    JobService
	orch    *orchestrator.Orchestrator
	emit    SSEEmitter
}

func NewGenerationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	courses repos.CourseRepo,
	itemRepo repos.GeneratedItemRepo,
	jobRuns repos.JobRunRepo,
	jobs JobService,
	orch *orchestrator.Orchestrator,
	emit SSEEmitter,
) GenerationService {
	return &generationService{
		db:      db,
		log:     baseLog.With("service", "GenerationService"),
		courses: courses,
		items:   itemRepo,
		jobRuns: jobRuns,
		jobs:    jobs,
		orch:    orch,
		emit:    emit,
	}
}

func (s *generationService) request(courseID uuid.UUID, in GenerateInput) orchestrator.Request {
	return QuizGeneratePayload{
		CourseID:   courseID,
		ChapterID:  in.ChapterID,
		Config:     genconfig.Normalize(in.Config),
		Regenerate: in.Regenerate,
		Mode:       in.Mode,
	}.Request()
}

// course loads a course visible to userID. A nil userID skips the ownership
// check.
func (s *generationService) course(ctx context.Context, userID, courseID uuid.UUID) (*types.Course, error) {
	c, err := s.courses.GetByID(dbctx.Context{Ctx: ctx}, courseID)
	if err != nil {
		return nil, err
	}
	if c == nil || (userID != uuid.Nil && c.UserID != userID) {
		return nil, apierr.ErrCourseNotFound
	}
	return c, nil
}

func (s *generationService) Enqueue(ctx context.Context, userID, courseID uuid.UUID, in GenerateInput) (*types.JobRun, error) {
	c, err := s.course(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	exists, err := s.jobRuns.ExistsRunnable(dbc, JobTypeQuizGenerate, EntityTypeCourse, &c.ID)
	if err != nil {
		return nil, fmt.Errorf("check runnable jobs: %w", err)
	}
	if exists {
		return nil, apierr.ErrGenerationInProgress
	}

	req := s.request(c.ID, in)
	if _, err := s.orch.Preflight(ctx, req); err != nil {
		return nil, err
	}
	payload, err := QuizGeneratePayload{
		CourseID:   req.CourseID,
		ChapterID:  req.ChapterID,
		Config:     req.Config,
		Regenerate: req.Regenerate,
		Mode:       string(req.Mode),
	}.Map()
	if err != nil {
		return nil, err
	}
	owner := userID
	if owner == uuid.Nil {
		owner = c.UserID
	}
	return s.jobs.Enqueue(dbc, owner, JobTypeQuizGenerate, EntityTypeCourse, &c.ID, payload)
}

func (s *generationService) Run(ctx context.Context, userID, courseID uuid.UUID, in GenerateInput, sink realtime.Sink) (*orchestrator.Result, error) {
	c, err := s.course(ctx, userID, courseID)
	if err != nil {
		_ = realtime.NewGuard(sink).Emit(realtime.Error(err.Error(), codeOf(err)))
		return nil, err
	}
	mirror := realtime.ChannelSink(context.WithoutCancel(ctx), s.emit, realtime.CourseChannel(c.ID))
	return s.orch.Run(ctx, s.request(c.ID, in), realtime.Tee(sink, mirror))
}

func (s *generationService) Status(ctx context.Context, userID, courseID uuid.UUID) (*types.CourseProgress, error) {
	c, err := s.course(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	return progressOf(ctx, s.jobRuns, c)
}

func (s *generationService) Items(ctx context.Context, userID, courseID uuid.UUID, chapterID *uuid.UUID) ([]*types.GeneratedItem, error) {
	if _, err := s.course(ctx, userID, courseID); err != nil {
		return nil, err
	}
	return s.items.List(dbctx.Context{Ctx: ctx}, repos.ItemScope{CourseID: courseID, ChapterID: chapterID})
}

func codeOf(err error) string {
	var api *apierr.Error
	if errors.As(err, &api) && api.Code != "" {
		return api.Code
	}
	return apierr.CodeGenerationFailed
}
