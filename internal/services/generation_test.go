package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/MartinPaviot/Nareo-sub004/internal/data/repos"
	"github.com/MartinPaviot/Nareo-sub004/internal/data/repos/testutil"
	types "github.com/MartinPaviot/Nareo-sub004/internal/domain"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/backend"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/genconfig"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/items"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/orchestrator"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/apierr"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/dbctx"
	"github.com/MartinPaviot/Nareo-sub004/internal/realtime"
)

type memEmitter struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (e *memEmitter) Emit(_ context.Context, msg realtime.SSEMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, msg)
}

type genFixture struct {
	db      *gorm.DB
	svc     GenerationService
	jobRuns repos.JobRunRepo
	emit    *memEmitter
}

func newGenFixture(t *testing.T) *genFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	courses := repos.NewCourseRepo(db, log)
	itemRepo := repos.NewGeneratedItemRepo(db, log)
	jobRuns := repos.NewJobRunRepo(db, log)
	emit := &memEmitter{}

	gen := backend.Func(func(ctx context.Context, req backend.Request, onBatch func(backend.Batch) error) ([]backend.Batch, error) {
		b := backend.Batch{Type: items.TypeBasic, Items: []items.Item{
			&items.BasicCard{Front: "ATP synthase", Back: "Enzyme that makes ATP"},
		}}
		if onBatch != nil {
			if err := onBatch(b); err != nil {
				return nil, err
			}
		}
		return []backend.Batch{b}, nil
	})
	orch := orchestrator.New(db, log, courses, repos.NewChapterRepo(db, log), itemRepo, gen, nil, orchestrator.Options{})
	jobs := NewJobService(db, log, jobRuns, NewJobNotifier(emit))
	return &genFixture{
		db:      db,
		svc:     NewGenerationService(db, log, courses, itemRepo, jobRuns, jobs, orch, emit),
		jobRuns: jobRuns,
		emit:    emit,
	}
}

func TestGenerationEnqueue(t *testing.T) {
	f := newGenFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	course := testutil.SeedCourse(t, ctx, f.db, owner)
	testutil.SeedChapter(t, ctx, f.db, course.ID, 0, testutil.LongText(300))

	_, err := f.svc.Enqueue(ctx, uuid.New(), course.ID, GenerateInput{})
	require.ErrorIs(t, err, apierr.ErrCourseNotFound)

	job, err := f.svc.Enqueue(ctx, owner, course.ID, GenerateInput{
		Config: genconfig.Raw{Niveau: "avancé", Count: "bogus"},
		Mode:   "incremental",
	})
	require.NoError(t, err)
	require.Equal(t, JobTypeQuizGenerate, job.JobType)
	require.Equal(t, types.JobStatusQueued, job.Status)

	stored, err := f.jobRuns.GetByID(dbctx.Context{Ctx: ctx}, job.ID)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(stored.Payload, &m))
	p, err := DecodeQuizGeneratePayload(m)
	require.NoError(t, err)
	require.Equal(t, course.ID, p.CourseID)
	require.Equal(t, genconfig.LevelAdvanced, p.Config.Level)
	require.Equal(t, 5, p.Config.PerType)
	require.Equal(t, orchestrator.ModeIncremental, p.Request().Mode)

	_, err = f.svc.Enqueue(ctx, owner, course.ID, GenerateInput{})
	require.ErrorIs(t, err, apierr.ErrGenerationInProgress)

	require.NotEmpty(t, f.emit.msgs)
	require.Equal(t, realtime.SSEEventJobCreated, f.emit.msgs[0].Event)
}

func TestGenerationEnqueueRejectsShortContent(t *testing.T) {
	f := newGenFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	course := testutil.SeedCourse(t, ctx, f.db, owner)
	testutil.SeedChapter(t, ctx, f.db, course.ID, 0, "Title page only")

	_, err := f.svc.Enqueue(ctx, owner, course.ID, GenerateInput{})
	require.ErrorIs(t, err, apierr.ErrInsufficientContent)

	exists, err := f.jobRuns.ExistsRunnable(dbctx.Context{Ctx: ctx}, JobTypeQuizGenerate, EntityTypeCourse, &course.ID)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestGenerationRunMirrorsCourseChannel(t *testing.T) {
	f := newGenFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	course := testutil.SeedCourse(t, ctx, f.db, owner)
	testutil.SeedChapter(t, ctx, f.db, course.ID, 0, testutil.LongText(300))

	var got []realtime.Event
	sink := realtime.SinkFunc(func(ev realtime.Event) error {
		got = append(got, ev)
		return nil
	})
	res, err := f.svc.Run(ctx, owner, course.ID, GenerateInput{Config: genconfig.Raw{Types: []string{"basic"}}}, sink)
	require.NoError(t, err)
	require.Equal(t, 1, res.ItemsGenerated)
	require.Equal(t, realtime.EventComplete, got[len(got)-1].Kind)

	var flashcards int
	for _, m := range f.emit.msgs {
		require.Equal(t, realtime.CourseChannel(course.ID), m.Channel)
		if m.Event == realtime.SSEEventQuizFlashcard {
			flashcards++
		}
	}
	require.Equal(t, 1, flashcards)

	st, err := f.svc.Status(ctx, owner, course.ID)
	require.NoError(t, err)
	require.Equal(t, types.QuizStatusReady, st.QuizStatus)
	require.Equal(t, 1, st.ItemsGenerated)

	rows, err := f.svc.Items(ctx, owner, course.ID, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, types.ItemKindFlashcard, rows[0].Kind)

	_, err = f.svc.Run(ctx, uuid.New(), course.ID, GenerateInput{}, sink)
	require.ErrorIs(t, err, apierr.ErrCourseNotFound)
	require.Equal(t, realtime.EventError, got[len(got)-1].Kind)
}
