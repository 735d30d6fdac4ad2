package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/MartinPaviot/Nareo-sub004/internal/data/repos"
	"github.com/MartinPaviot/Nareo-sub004/internal/data/repos/testutil"
	"github.com/MartinPaviot/Nareo-sub004/internal/domain"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/backend"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/genconfig"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/items"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/apierr"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/dbctx"
	"github.com/MartinPaviot/Nareo-sub004/internal/realtime"
)

type harness struct {
	db       *gorm.DB
	courses  repos.CourseRepo
	chapters repos.ChapterRepo
	items    repos.GeneratedItemRepo
	calls    int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	return &harness{
		db:       db,
		courses:  repos.NewCourseRepo(db, log),
		chapters: repos.NewChapterRepo(db, log),
		items:    repos.NewGeneratedItemRepo(db, log),
	}
}

// orchestrator counts backend calls so tests can assert nothing was invoked.
func (h *harness) orchestrator(t *testing.T, gen backend.Func) *Orchestrator {
	t.Helper()
	counted := backend.Func(func(ctx context.Context, req backend.Request, onBatch func(backend.Batch) error) ([]backend.Batch, error) {
		h.calls++
		return gen(ctx, req, onBatch)
	})
	return New(h.db, testutil.Logger(t), h.courses, h.chapters, h.items, counted, nil, Options{})
}

func (h *harness) course(t *testing.T, id uuid.UUID) *domain.Course {
	t.Helper()
	c, err := h.courses.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func (h *harness) count(t *testing.T, scope repos.ItemScope) int {
	t.Helper()
	n, err := h.items.Count(dbctx.Context{Ctx: context.Background()}, scope)
	require.NoError(t, err)
	return int(n)
}

type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Emit(ev realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) snapshot() []realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]realtime.Event(nil), r.events...)
}

// requireWellFormed checks that progress never decreases and that the stream
// ends with exactly one terminal event.
func requireWellFormed(t *testing.T, events []realtime.Event) realtime.Event {
	t.Helper()
	require.NotEmpty(t, events)
	last := -1
	terminals := 0
	for _, ev := range events {
		if p, ok := ev.Data.(realtime.ProgressData); ok {
			require.GreaterOrEqual(t, p.Progress, last)
			last = p.Progress
		}
		if ev.Terminal() {
			terminals++
		}
	}
	require.Equal(t, 1, terminals)
	final := events[len(events)-1]
	require.True(t, final.Terminal())
	return final
}

func itemEvents(events []realtime.Event) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == realtime.EventQuestion || ev.Kind == realtime.EventFlashcard {
			n++
		}
	}
	return n
}

// tok returns a six-letter word; any two distinct words differ in at least
// three positions, so the duplicate filter never treats them as near matches.
func tok(n int) string {
	a := string(rune('a' + n%26))
	b := string(rune('a' + (n/26)%26))
	return strings.Repeat(a, 3) + strings.Repeat(b, 3)
}

func question(n int) string {
	return fmt.Sprintf("explain %s %s", tok(2*n), tok(2*n+1))
}

func mcq(text string) items.Item {
	return &items.MCQ{
		Question:     text,
		Options:      []string{"first", "second"},
		CorrectIndex: 0,
		Meta:         items.Meta{ConceptName: "concept"},
	}
}

func mcqBatch(texts ...string) backend.Batch {
	b := backend.Batch{Type: items.TypeMCQ}
	for _, s := range texts {
		b.Items = append(b.Items, mcq(s))
	}
	return b
}

func seedChapters(t *testing.T, h *harness, texts ...string) (*domain.Course, []*domain.Chapter) {
	t.Helper()
	ctx := context.Background()
	c := testutil.SeedCourse(t, ctx, h.db, uuid.New())
	var out []*domain.Chapter
	for i, s := range texts {
		out = append(out, testutil.SeedChapter(t, ctx, h.db, c.ID, i, s))
	}
	return c, out
}

func chapterText(marker string) string {
	return testutil.LongText(150) + " " + marker
}

func TestRunSkipsFailingChapter(t *testing.T) {
	h := newHarness(t)
	c, _ := seedChapters(t, h, chapterText("one"), chapterText("broken"), chapterText("three"))

	next := 0
	o := h.orchestrator(t, func(ctx context.Context, req backend.Request, onBatch func(backend.Batch) error) ([]backend.Batch, error) {
		if strings.HasSuffix(req.SourceText, "broken") {
			return nil, apierr.Wrap(apierr.ErrBackend, errors.New("upstream 500"))
		}
		b := mcqBatch(question(next), question(next+1))
		next += 2
		return []backend.Batch{b}, nil
	})

	rec := &recorder{}
	res, err := o.Run(context.Background(), Request{CourseID: c.ID, Config: genconfig.Default()}, rec)
	require.NoError(t, err)
	require.Equal(t, domain.QuizStatusReady, res.Status)
	require.Equal(t, 4, res.ItemsGenerated)
	require.Equal(t, 2, res.ChaptersSucceeded)
	require.Equal(t, 1, res.ChaptersFailed)
	require.Equal(t, 3, h.calls)

	events := rec.snapshot()
	final := requireWellFormed(t, events)
	require.Equal(t, realtime.EventComplete, final.Kind)
	require.Equal(t, realtime.CompleteData{TotalItems: 4, Status: domain.QuizStatusReady}, final.Data)
	require.Equal(t, 4, itemEvents(events))

	course := h.course(t, c.ID)
	require.Equal(t, domain.QuizStatusReady, course.QuizStatus)
	require.Equal(t, 100, course.QuizProgress)
	require.Equal(t, h.count(t, repos.ItemScope{CourseID: c.ID}), course.QuizQuestionsGenerated)
}

func TestRunRejectsShortChapterBeforeBackend(t *testing.T) {
	h := newHarness(t)
	c, chs := seedChapters(t, h, strings.Repeat("x", 40))
	o := h.orchestrator(t, func(context.Context, backend.Request, func(backend.Batch) error) ([]backend.Batch, error) {
		return nil, nil
	})

	rec := &recorder{}
	_, err := o.Run(context.Background(), Request{CourseID: c.ID, ChapterID: &chs[0].ID}, rec)
	require.ErrorIs(t, err, apierr.ErrInsufficientContent)
	require.NotErrorIs(t, err, apierr.ErrBackend)
	require.Zero(t, h.calls)

	final := requireWellFormed(t, rec.snapshot())
	require.Equal(t, realtime.EventError, final.Kind)
	require.Equal(t, apierr.CodeInsufficientContent, final.Data.(realtime.ErrorData).Code)
	require.Equal(t, domain.QuizStatusPending, h.course(t, c.ID).QuizStatus)

	_, err = o.Run(context.Background(), Request{CourseID: c.ID}, nil)
	require.ErrorIs(t, err, apierr.ErrInsufficientContent)
}

func TestRunUnknownCourseAndForeignChapter(t *testing.T) {
	h := newHarness(t)
	_, chs := seedChapters(t, h, chapterText("a"))
	other, _ := seedChapters(t, h, chapterText("b"))
	o := h.orchestrator(t, func(context.Context, backend.Request, func(backend.Batch) error) ([]backend.Batch, error) {
		return nil, nil
	})

	_, err := o.Run(context.Background(), Request{CourseID: uuid.New()}, nil)
	require.ErrorIs(t, err, apierr.ErrCourseNotFound)

	_, err = o.Preflight(context.Background(), Request{CourseID: other.ID, ChapterID: &chs[0].ID})
	require.ErrorIs(t, err, apierr.ErrChapterNotFound)
}

func TestRunDropsCrossChapterDuplicatesAndAdministrativeItems(t *testing.T) {
	h := newHarness(t)
	c, _ := seedChapters(t, h, chapterText("first"), chapterText("second"))

	o := h.orchestrator(t, func(ctx context.Context, req backend.Request, onBatch func(backend.Batch) error) ([]backend.Batch, error) {
		if strings.HasSuffix(req.SourceText, "first") {
			return []backend.Batch{mcqBatch(question(0), "Which page lists the exam dates?")}, nil
		}
		return []backend.Batch{mcqBatch(strings.ToUpper(question(0))+"?", question(1))}, nil
	})

	res, err := o.Run(context.Background(), Request{CourseID: c.ID, Config: genconfig.Default()}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, res.ItemsGenerated)
	require.Equal(t, 1, res.Dropped.Duplicates)
	require.Equal(t, 1, res.Dropped.Administrative)

	rows, err := h.items.List(dbctx.Context{Ctx: context.Background()}, repos.ItemScope{CourseID: c.ID})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, question(0), rows[0].Prompt)
	require.Equal(t, question(1), rows[1].Prompt)
}

func TestRunIncrementalPersistsEachBatch(t *testing.T) {
	h := newHarness(t)
	c, chs := seedChapters(t, h, chapterText("only"))

	o := h.orchestrator(t, func(ctx context.Context, req backend.Request, onBatch func(backend.Batch) error) ([]backend.Batch, error) {
		require.NotNil(t, onBatch)
		first := mcqBatch(question(0), question(1))
		require.NoError(t, onBatch(first))
		require.Equal(t, 2, h.count(t, repos.ItemScope{CourseID: c.ID}))

		second := backend.Batch{Type: items.TypeTrueFalse, Items: []items.Item{
			&items.TrueFalse{Statement: question(2), Answer: true},
		}, Dropped: 1}
		require.NoError(t, onBatch(second))
		return []backend.Batch{first, second}, nil
	})

	rec := &recorder{}
	cfg := genconfig.Default()
	res, err := o.Run(context.Background(), Request{CourseID: c.ID, Config: cfg, Mode: ModeIncremental}, rec)
	require.NoError(t, err)
	require.Equal(t, 3, res.ItemsGenerated)
	require.Equal(t, 1, res.Dropped.Parse)

	events := rec.snapshot()
	requireWellFormed(t, events)
	require.Equal(t, 3, itemEvents(events))

	ch, err := h.chapters.GetByID(dbctx.Context{Ctx: context.Background()}, chs[0].ID)
	require.NoError(t, err)
	require.Equal(t, 3, ch.ItemsGenerated)
	require.Equal(t, domain.QuizStatusReady, ch.QuizStatus)
}

func TestRunRequiresRegenerateToReplaceItems(t *testing.T) {
	h := newHarness(t)
	c, chs := seedChapters(t, h, chapterText("a"), chapterText("b"))

	second := false
	o := h.orchestrator(t, func(ctx context.Context, req backend.Request, onBatch func(backend.Batch) error) ([]backend.Batch, error) {
		if strings.HasSuffix(req.SourceText, "a") {
			return []backend.Batch{mcqBatch(question(0))}, nil
		}
		if second {
			// Repeats chapter a's question, which survives a chapter-scoped clear.
			return []backend.Batch{mcqBatch(question(0), question(5))}, nil
		}
		return []backend.Batch{mcqBatch(question(1))}, nil
	})

	ctx := context.Background()
	_, err := o.Run(ctx, Request{CourseID: c.ID}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, h.count(t, repos.ItemScope{CourseID: c.ID}))

	_, err = o.Run(ctx, Request{CourseID: c.ID}, nil)
	require.ErrorIs(t, err, apierr.ErrAlreadyGenerated)

	res, err := o.Run(ctx, Request{CourseID: c.ID, Regenerate: true}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, res.ItemsGenerated)
	require.Equal(t, 2, h.count(t, repos.ItemScope{CourseID: c.ID}))

	second = true
	res, err = o.Run(ctx, Request{CourseID: c.ID, ChapterID: &chs[1].ID, Regenerate: true}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.ItemsGenerated)
	require.Equal(t, 1, res.Dropped.Duplicates)
	require.Equal(t, 2, res.TotalItems)
	require.Equal(t, 2, h.course(t, c.ID).QuizQuestionsGenerated)
	require.Equal(t, 1, h.count(t, repos.ItemScope{CourseID: c.ID, ChapterID: &chs[1].ID}))
}

func TestRunRefusesConcurrentRunUntilStale(t *testing.T) {
	h := newHarness(t)
	c, _ := seedChapters(t, h, chapterText("a"))
	o := h.orchestrator(t, func(ctx context.Context, req backend.Request, onBatch func(backend.Batch) error) ([]backend.Batch, error) {
		return []backend.Batch{mcqBatch(question(0))}, nil
	})

	require.NoError(t, h.db.Model(&domain.Course{}).Where("id = ?", c.ID).UpdateColumns(map[string]interface{}{
		"quiz_status": domain.QuizStatusGenerating,
		"updated_at":  time.Now(),
	}).Error)

	rec := &recorder{}
	_, err := o.Run(context.Background(), Request{CourseID: c.ID}, rec)
	require.ErrorIs(t, err, apierr.ErrGenerationInProgress)
	require.Equal(t, apierr.CodeGenerationInProgress, requireWellFormed(t, rec.snapshot()).Data.(realtime.ErrorData).Code)
	require.Zero(t, h.calls)

	require.NoError(t, h.db.Model(&domain.Course{}).Where("id = ?", c.ID).UpdateColumns(map[string]interface{}{
		"updated_at": time.Now().Add(-time.Hour),
	}).Error)
	res, err := o.Run(context.Background(), Request{CourseID: c.ID}, nil)
	require.NoError(t, err)
	require.Equal(t, domain.QuizStatusReady, res.Status)
}

func TestRunCancelFinishesChapterThenStops(t *testing.T) {
	h := newHarness(t)
	c, _ := seedChapters(t, h, chapterText("a"), chapterText("b"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o := h.orchestrator(t, func(runCtx context.Context, req backend.Request, onBatch func(backend.Batch) error) ([]backend.Batch, error) {
		cancel()
		if err := runCtx.Err(); err != nil {
			return nil, err
		}
		return []backend.Batch{mcqBatch(question(0), question(1))}, nil
	})

	rec := &recorder{}
	res, err := o.Run(ctx, Request{CourseID: c.ID}, rec)
	require.NoError(t, err)
	require.Equal(t, domain.QuizStatusPartial, res.Status)
	require.Equal(t, 2, res.ItemsGenerated)
	require.Equal(t, 1, h.calls)

	final := requireWellFormed(t, rec.snapshot())
	require.Equal(t, realtime.CompleteData{TotalItems: 2, Status: domain.QuizStatusPartial}, final.Data)

	course := h.course(t, c.ID)
	require.Equal(t, domain.QuizStatusPartial, course.QuizStatus)
	require.Equal(t, 2, course.QuizQuestionsGenerated)
}

func TestRunFailsWhenNothingGenerated(t *testing.T) {
	h := newHarness(t)
	c, _ := seedChapters(t, h, chapterText("a"), chapterText("b"))
	o := h.orchestrator(t, func(context.Context, backend.Request, func(backend.Batch) error) ([]backend.Batch, error) {
		return nil, errors.New("model unavailable")
	})

	rec := &recorder{}
	res, err := o.Run(context.Background(), Request{CourseID: c.ID, Mode: ModeIncremental}, rec)
	require.ErrorIs(t, err, apierr.ErrBackend)
	require.Equal(t, domain.QuizStatusFailed, res.Status)
	require.Equal(t, 2, res.ChaptersFailed)

	final := requireWellFormed(t, rec.snapshot())
	require.Equal(t, apierr.CodeGenerationFailed, final.Data.(realtime.ErrorData).Code)

	course := h.course(t, c.ID)
	require.Equal(t, domain.QuizStatusFailed, course.QuizStatus)
	require.NotEmpty(t, course.QuizErrorMessage)
	require.Zero(t, course.QuizQuestionsGenerated)
}

func TestScopedRunWithNothingNewKeepsCourseUsable(t *testing.T) {
	h := newHarness(t)
	c, chs := seedChapters(t, h, chapterText("a"), chapterText("b"))

	down := false
	o := h.orchestrator(t, func(ctx context.Context, req backend.Request, onBatch func(backend.Batch) error) ([]backend.Batch, error) {
		if down {
			return nil, errors.New("model unavailable")
		}
		if strings.HasSuffix(req.SourceText, "a") {
			return []backend.Batch{mcqBatch(question(0))}, nil
		}
		return []backend.Batch{mcqBatch(question(1))}, nil
	})

	ctx := context.Background()
	_, err := o.Run(ctx, Request{CourseID: c.ID}, nil)
	require.NoError(t, err)

	down = true
	rec := &recorder{}
	res, err := o.Run(ctx, Request{CourseID: c.ID, ChapterID: &chs[1].ID, Regenerate: true}, rec)
	require.NoError(t, err)
	require.Equal(t, domain.QuizStatusPartial, res.Status)
	require.Zero(t, res.ItemsGenerated)
	require.Equal(t, 1, res.TotalItems)

	final := requireWellFormed(t, rec.snapshot())
	require.Equal(t, realtime.CompleteData{TotalItems: 1, Status: domain.QuizStatusPartial}, final.Data)

	course := h.course(t, c.ID)
	require.Equal(t, domain.QuizStatusPartial, course.QuizStatus)
	require.Equal(t, 1, course.QuizQuestionsGenerated)
	require.Equal(t, 1, course.QuizTotalQuestions)
	require.NotEmpty(t, course.QuizErrorMessage)
	require.Equal(t, 1, h.count(t, repos.ItemScope{CourseID: c.ID, ChapterID: &chs[0].ID}))
}

func TestFinishedRunRecordsStoredTotal(t *testing.T) {
	h := newHarness(t)
	c, _ := seedChapters(t, h, chapterText("a"))
	o := h.orchestrator(t, func(context.Context, backend.Request, func(backend.Batch) error) ([]backend.Batch, error) {
		return []backend.Batch{mcqBatch(question(0), question(1))}, nil
	})

	res, err := o.Run(context.Background(), Request{CourseID: c.ID}, nil)
	require.NoError(t, err)
	require.Equal(t, domain.QuizStatusReady, res.Status)

	course := h.course(t, c.ID)
	require.Equal(t, 2, course.QuizQuestionsGenerated)
	require.Equal(t, course.QuizQuestionsGenerated, course.QuizTotalQuestions)
	require.Equal(t, 2, course.Progress().TotalItems)
}

func TestParseMode(t *testing.T) {
	require.Equal(t, ModeIncremental, ParseMode(" Incremental "))
	require.Equal(t, ModeBatch, ParseMode("batch"))
	require.Equal(t, ModeBatch, ParseMode("bogus"))
}
