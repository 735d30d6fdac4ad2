package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/MartinPaviot/Nareo-sub004/internal/data/repos"
	"github.com/MartinPaviot/Nareo-sub004/internal/data/repos/testutil"
	types "github.com/MartinPaviot/Nareo-sub004/internal/domain"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/backend"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/genconfig"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/items"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/orchestrator"
	"github.com/MartinPaviot/Nareo-sub004/internal/jobs/pipeline/quiz_generate"
	"github.com/MartinPaviot/Nareo-sub004/internal/jobs/runtime"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/apierr"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/dbctx"
	"github.com/MartinPaviot/Nareo-sub004/internal/realtime"
	"github.com/MartinPaviot/Nareo-sub004/internal/services"
)

type recordingEmitter struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (e *recordingEmitter) Emit(_ context.Context, msg realtime.SSEMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, msg)
}

func (e *recordingEmitter) events(channel string) []realtime.SSEEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []realtime.SSEEvent
	for _, m := range e.msgs {
		if m.Channel == channel {
			out = append(out, m.Event)
		}
	}
	return out
}

type panicHandler struct{}

func (panicHandler) Type() string                { return "explode" }
func (panicHandler) Run(*runtime.Context) error { panic("boom") }

type fixture struct {
	jobs    repos.JobRunRepo
	courses repos.CourseRepo
	items   repos.GeneratedItemRepo
	emit    *recordingEmitter
	worker  *Worker
	db      *gorm.DB
}

func newFixture(t *testing.T, gen backend.Func) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := &fixture{
		jobs:    repos.NewJobRunRepo(db, log),
		courses: repos.NewCourseRepo(db, log),
		items:   repos.NewGeneratedItemRepo(db, log),
		emit:    &recordingEmitter{},
		db:      db,
	}
	orch := orchestrator.New(db, log, f.courses, repos.NewChapterRepo(db, log), f.items, gen, nil, orchestrator.Options{})

	reg := runtime.NewRegistry()
	require.NoError(t, reg.Register(quiz_generate.New(log, orch, f.emit)))
	require.NoError(t, reg.Register(panicHandler{}))
	require.Error(t, reg.Register(panicHandler{}))

	f.worker = NewWorker(db, log, f.jobs, reg, services.NewJobNotifier(f.emit), Config{})
	return f
}

func (f *fixture) enqueue(t *testing.T, owner uuid.UUID, jobType string, entityID uuid.UUID, payload any) *types.JobRun {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	job := &types.JobRun{
		OwnerUserID: owner,
		JobType:     jobType,
		EntityType:  services.EntityTypeCourse,
		EntityID:    &entityID,
		Status:      types.JobStatusQueued,
		Stage:       "queued",
		Payload:     datatypes.JSON(b),
		Result:      datatypes.JSON([]byte(`{}`)),
	}
	_, err = f.jobs.Create(dbctx.Context{Ctx: context.Background()}, []*types.JobRun{job})
	require.NoError(t, err)
	return job
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *types.JobRun {
	t.Helper()
	job, err := f.jobs.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func TestRunOnceGeneratesQuiz(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, req backend.Request, onBatch func(backend.Batch) error) ([]backend.Batch, error) {
		return []backend.Batch{{Type: items.TypeMCQ, Items: []items.Item{
			&items.MCQ{Question: "What does the inner membrane host?", Options: []string{"ETC", "DNA"}},
		}}}, nil
	})
	ctx := context.Background()

	owner := uuid.New()
	course := testutil.SeedCourse(t, ctx, f.db, owner)
	testutil.SeedChapter(t, ctx, f.db, course.ID, 0, testutil.LongText(200))

	job := f.enqueue(t, owner, services.JobTypeQuizGenerate, course.ID, services.QuizGeneratePayload{
		CourseID: course.ID,
		Config:   genconfig.Default(),
	})

	ran, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, ran)

	got := f.reload(t, job.ID)
	require.Equal(t, types.JobStatusSucceeded, got.Status)
	require.Equal(t, 100, got.Progress)
	var res orchestrator.Result
	require.NoError(t, json.Unmarshal(got.Result, &res))
	require.Equal(t, types.QuizStatusReady, res.Status)
	require.Equal(t, 1, res.ItemsGenerated)

	courseEvents := f.emit.events(realtime.CourseChannel(course.ID))
	require.Contains(t, courseEvents, realtime.SSEEventQuizQuestion)
	require.Equal(t, realtime.SSEEventQuizComplete, courseEvents[len(courseEvents)-1])
	userEvents := f.emit.events(realtime.UserChannel(owner))
	require.Contains(t, userEvents, realtime.SSEEventJobProgress)
	require.Equal(t, realtime.SSEEventJobDone, userEvents[len(userEvents)-1])

	ran, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.False(t, ran)
}

func TestRunOnceFailsPermanentlyOnRequestErrors(t *testing.T) {
	calls := 0
	f := newFixture(t, func(context.Context, backend.Request, func(backend.Batch) error) ([]backend.Batch, error) {
		calls++
		return nil, errors.New("unreachable")
	})
	ctx := context.Background()
	owner := uuid.New()
	course := testutil.SeedCourse(t, ctx, f.db, owner)
	testutil.SeedChapter(t, ctx, f.db, course.ID, 0, "too short")

	job := f.enqueue(t, owner, services.JobTypeQuizGenerate, course.ID, services.QuizGeneratePayload{CourseID: course.ID})
	ran, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, ran)
	require.Zero(t, calls)

	got := f.reload(t, job.ID)
	require.Equal(t, types.JobStatusFailed, got.Status)
	require.Equal(t, f.worker.cfg.Claim.MaxAttempts, got.Attempts)
	require.Contains(t, got.Error, apierr.ErrInsufficientContent.Error())

	ran, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.False(t, ran)
}

func TestRunOnceRecoversPanicsAndUnknownTypes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	owner := uuid.New()

	panicked := f.enqueue(t, owner, "explode", uuid.New(), map[string]any{})
	ran, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, ran)
	got := f.reload(t, panicked.ID)
	require.Equal(t, types.JobStatusFailed, got.Status)
	require.Equal(t, "panic", got.Stage)
	require.Contains(t, got.Error, "boom")

	unknown := f.enqueue(t, owner, "nobody_handles_this", uuid.New(), map[string]any{})
	// The panicked job waits out its retry delay, so the next claim is the
	// unknown one.
	ran, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, ran)
	got = f.reload(t, unknown.ID)
	require.Equal(t, types.JobStatusFailed, got.Status)
	require.Equal(t, "dispatch", got.Stage)
}

func TestRunOnceMalformedPayload(t *testing.T) {
	f := newFixture(t, nil)
	job := f.enqueue(t, uuid.New(), services.JobTypeQuizGenerate, uuid.New(), map[string]any{"course_id": "not-a-uuid"})
	ran, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	got := f.reload(t, job.ID)
	require.Equal(t, types.JobStatusFailed, got.Status)
	require.Equal(t, "validate", got.Stage)
}
