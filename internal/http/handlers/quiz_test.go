package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
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
	"github.com/MartinPaviot/Nareo-sub004/internal/http/middleware"
	"github.com/MartinPaviot/Nareo-sub004/internal/realtime"
	"github.com/MartinPaviot/Nareo-sub004/internal/services"
)

type discardEmitter struct{}

func (discardEmitter) Emit(context.Context, realtime.SSEMessage) {}

type harness struct {
	db     *gorm.DB
	engine *gin.Engine
	gen    services.GenerationService
}

func mcqBackend() backend.Func {
	return func(ctx context.Context, req backend.Request, onBatch func(backend.Batch) error) ([]backend.Batch, error) {
		b := backend.Batch{Type: items.TypeMCQ, Items: []items.Item{
			&items.MCQ{Question: "Which organelle produces most cellular ATP?", Options: []string{"Mitochondrion", "Ribosome"}, CorrectIndex: 0},
			&items.MCQ{Question: "What molecule carries amino acids to the ribosome?", Options: []string{"tRNA", "DNA"}, CorrectIndex: 0},
		}}
		if onBatch != nil {
			if err := onBatch(b); err != nil {
				return nil, err
			}
		}
		return []backend.Batch{b}, nil
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)

	courses := repos.NewCourseRepo(db, log)
	itemRepo := repos.NewGeneratedItemRepo(db, log)
	jobRuns := repos.NewJobRunRepo(db, log)
	orch := orchestrator.New(db, log, courses, repos.NewChapterRepo(db, log), itemRepo, mcqBackend(), nil, orchestrator.Options{})
	emit := discardEmitter{}
	jobs := services.NewJobService(db, log, jobRuns, services.NewJobNotifier(emit))
	gen := services.NewGenerationService(db, log, courses, itemRepo, jobRuns, jobs, orch, emit)
	reviews := services.NewReviewService(db, log, courses, itemRepo, repos.NewReviewStateRepo(db, log))
	bridge := realtime.NewPollBridge(log, services.NewPollSource(courses, itemRepo, jobRuns), realtime.PollConfig{Interval: 10 * time.Millisecond})

	quiz := NewQuizHandler(log, gen, bridge)
	review := NewReviewHandler(log, reviews)
	job := NewJobHandler(jobs)

	r := gin.New()
	r.Use(middleware.AttachRequestContext())
	api := r.Group("/api", middleware.RequireUser())
	api.POST("/courses/:id/quiz/generate", quiz.Generate)
	api.GET("/courses/:id/quiz/stream", quiz.Stream)
	api.GET("/courses/:id/quiz/status", quiz.Status)
	api.GET("/courses/:id/items", quiz.Items)
	api.POST("/flashcards/:id/review", review.Submit)
	api.GET("/reviews/due", review.Due)
	api.GET("/jobs/:id", job.GetJob)
	api.GET("/courses/:id/quiz/job", job.LatestForCourse)

	return &harness{db: db, engine: r, gen: gen}
}

func (h *harness) do(t *testing.T, method, path string, userID uuid.UUID, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User-Id", userID.String())
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func frames(t *testing.T, rec *httptest.ResponseRecorder) []realtime.Frame {
	t.Helper()
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	out, err := realtime.DecodeAll(strings.NewReader(rec.Body.String()))
	require.NoError(t, err)
	require.NotEmpty(t, out)
	return out
}

func requireSingleTerminal(t *testing.T, fs []realtime.Frame, want string) {
	t.Helper()
	terminals := 0
	for _, f := range fs {
		if f.Event == "complete" || f.Event == "error" {
			terminals++
		}
	}
	require.Equal(t, 1, terminals, "exactly one terminal frame")
	require.Equal(t, want, fs[len(fs)-1].Event)
}

func TestGenerateStreamsDirectPush(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := uuid.New()
	course := testutil.SeedCourse(t, ctx, h.db, owner)
	testutil.SeedChapter(t, ctx, h.db, course.ID, 0, testutil.LongText(400))

	rec := h.do(t, http.MethodPost, "/api/courses/"+course.ID.String()+"/quiz/generate", owner,
		`{"config":{"types":["mcq"]}}`, map[string]string{"Accept": "text/event-stream"})
	require.Equal(t, http.StatusOK, rec.Code)

	fs := frames(t, rec)
	requireSingleTerminal(t, fs, "complete")
	var questions, lastProgress int
	for _, f := range fs {
		switch f.Event {
		case "question":
			questions++
		case "progress":
			var p realtime.ProgressData
			require.NoError(t, json.Unmarshal([]byte(f.Data), &p))
			require.GreaterOrEqual(t, p.Progress, lastProgress)
			lastProgress = p.Progress
		}
	}
	require.Equal(t, 2, questions)

	rec = h.do(t, http.MethodGet, "/api/courses/"+course.ID.String()+"/quiz/status", owner, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p types.CourseProgress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.Equal(t, types.QuizStatusReady, p.QuizStatus)
	require.Equal(t, 2, p.ItemsGenerated)

	rec = h.do(t, http.MethodGet, "/api/courses/"+course.ID.String()+"/items", owner, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []types.GeneratedItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 2)

	rec = h.do(t, http.MethodGet, "/api/courses/"+course.ID.String()+"/items?chapter_id=nope", owner, "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateStreamReportsInsufficientContentAsErrorEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := uuid.New()
	course := testutil.SeedCourse(t, ctx, h.db, owner)
	testutil.SeedChapter(t, ctx, h.db, course.ID, 0, strings.Repeat("x", 40))

	rec := h.do(t, http.MethodPost, "/api/courses/"+course.ID.String()+"/quiz/generate?stream=1", owner, "", nil)
	fs := frames(t, rec)
	require.Len(t, fs, 1)
	requireSingleTerminal(t, fs, "error")
	var e realtime.ErrorData
	require.NoError(t, json.Unmarshal([]byte(fs[0].Data), &e))
	require.Equal(t, "insufficient_content", e.Code)
}

func TestGenerateEnqueuesJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := uuid.New()
	course := testutil.SeedCourse(t, ctx, h.db, owner)
	testutil.SeedChapter(t, ctx, h.db, course.ID, 0, testutil.LongText(400))
	path := "/api/courses/" + course.ID.String() + "/quiz/generate"

	rec := h.do(t, http.MethodPost, path, owner, `{"config":{"niveau":"facile"},"mode":"incremental"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var out struct {
		Job types.JobRun `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, services.JobTypeQuizGenerate, out.Job.JobType)

	rec = h.do(t, http.MethodPost, path, owner, "", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "generation_in_progress", errorCode(t, rec))

	rec = h.do(t, http.MethodGet, "/api/jobs/"+out.Job.ID.String(), owner, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodGet, "/api/jobs/"+out.Job.ID.String(), uuid.New(), "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "job_not_found", errorCode(t, rec))

	rec = h.do(t, http.MethodGet, "/api/courses/"+course.ID.String()+"/quiz/job", owner, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, path, owner, `{"config":`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateRejectsInsufficientContentAndForeignCourse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := uuid.New()
	course := testutil.SeedCourse(t, ctx, h.db, owner)
	testutil.SeedChapter(t, ctx, h.db, course.ID, 0, strings.Repeat("x", 40))
	path := "/api/courses/" + course.ID.String() + "/quiz/generate"

	rec := h.do(t, http.MethodPost, path, owner, "", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "insufficient_content", errorCode(t, rec))

	rec = h.do(t, http.MethodPost, path, uuid.New(), "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "course_not_found", errorCode(t, rec))

	rec = h.do(t, http.MethodGet, "/api/courses/"+course.ID.String()+"/quiz/stream", uuid.New(), "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/courses/not-a-uuid/quiz/generate", owner, "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_course_id", errorCode(t, rec))
}

func TestStreamReplaysFinishedRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := uuid.New()
	course := testutil.SeedCourse(t, ctx, h.db, owner)
	testutil.SeedChapter(t, ctx, h.db, course.ID, 0, testutil.LongText(400))

	_, err := h.gen.Run(ctx, owner, course.ID, services.GenerateInput{}, realtime.Discard)
	require.NoError(t, err)

	rec := h.do(t, http.MethodGet, "/api/courses/"+course.ID.String()+"/quiz/stream", owner, "", nil)
	fs := frames(t, rec)
	requireSingleTerminal(t, fs, "complete")
	var questions int
	for _, f := range fs {
		if f.Event == "question" {
			questions++
		}
	}
	require.Equal(t, 2, questions)

	var last realtime.ProgressData
	for _, f := range fs {
		if f.Event == "progress" {
			require.NoError(t, json.Unmarshal([]byte(f.Data), &last))
		}
	}
	require.Equal(t, 2, last.TotalItems)
	require.Equal(t, 2, last.ItemsGenerated)
}

func TestStreamWaitsForQueuedRegenerate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := uuid.New()
	course := testutil.SeedCourse(t, ctx, h.db, owner)
	testutil.SeedChapter(t, ctx, h.db, course.ID, 0, testutil.LongText(400))

	_, err := h.gen.Run(ctx, owner, course.ID, services.GenerateInput{}, realtime.Discard)
	require.NoError(t, err)

	base := "/api/courses/" + course.ID.String() + "/quiz/"
	rec := h.do(t, http.MethodPost, base+"generate", owner, `{"regenerate":true}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = h.do(t, http.MethodGet, base+"status", owner, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status types.CourseProgress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.True(t, status.Queued)

	// No worker runs here, so the stream stays open until the client leaves.
	streamCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, base+"stream", nil).WithContext(streamCtx)
	req.Header.Set("X-User-Id", owner.String())
	rec = httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)

	fs := frames(t, rec)
	for _, f := range fs {
		require.Equal(t, "progress", f.Event)
	}
	var p realtime.ProgressData
	require.NoError(t, json.Unmarshal([]byte(fs[0].Data), &p))
	require.Equal(t, realtime.StepQueued, p.Step)
}

func TestGenerateIgnoresWrongTypedConfig(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := uuid.New()

	cases := []struct {
		body  string
		check func(t *testing.T, cfg genconfig.Config)
	}{
		{`{"config":{"level":5,"count":true}}`, func(t *testing.T, cfg genconfig.Config) {
			require.Equal(t, genconfig.Default(), cfg)
		}},
		{`{"config":{"mcq":"no","fill_blank":[true]}}`, func(t *testing.T, cfg genconfig.Config) {
			require.Equal(t, []items.Type{items.TypeTrueFalse, items.TypeFillBlank}, cfg.Types)
		}},
		{`{"config":{"types":"mcq"}}`, func(t *testing.T, cfg genconfig.Config) {
			require.Equal(t, []items.Type{items.TypeMCQ}, cfg.Types)
		}},
		{`{"config":"beginner"}`, func(t *testing.T, cfg genconfig.Config) {
			require.Equal(t, genconfig.Default(), cfg)
		}},
	}
	for _, tc := range cases {
		course := testutil.SeedCourse(t, ctx, h.db, owner)
		testutil.SeedChapter(t, ctx, h.db, course.ID, 0, testutil.LongText(400))

		rec := h.do(t, http.MethodPost, "/api/courses/"+course.ID.String()+"/quiz/generate", owner, tc.body, nil)
		require.Equal(t, http.StatusAccepted, rec.Code, tc.body)
		var out struct {
			Job types.JobRun `json:"job"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		var payload services.QuizGeneratePayload
		require.NoError(t, json.Unmarshal(out.Job.Payload, &payload))
		tc.check(t, payload.Config)
	}
}

func TestReviewEndpoints(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := uuid.New()
	course := testutil.SeedCourse(t, ctx, h.db, owner)
	card := testutil.SeedItem(t, ctx, h.db, course.ID, nil, types.ItemKindFlashcard, "basic", "Glycolysis location")
	path := "/api/flashcards/" + card.ID.String() + "/review"

	rec := h.do(t, http.MethodPost, path, owner, `{"rating":"perfect"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_rating", errorCode(t, rec))

	rec = h.do(t, http.MethodPost, path, owner, `{}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, path, uuid.New(), `{"rating":"good"}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, path, owner, `{"rating":"hard"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Review types.ReviewState `json:"review"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, 1, out.Review.IntervalDays)
	require.Equal(t, 1, out.Review.IncorrectCount)
	require.InDelta(t, 2.36, out.Review.EaseFactor, 1e-9)

	rec = h.do(t, http.MethodGet, "/api/reviews/due?course_id="+course.ID.String(), owner, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
