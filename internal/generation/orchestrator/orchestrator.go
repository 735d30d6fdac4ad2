// Package orchestrator drives one generation run for a course or a single
// chapter: chapters are processed in reading order, every produced batch is
// validated and deduplicated, and accepted items are persisted one by one
// while progress is streamed to a sink.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/MartinPaviot/Nareo-sub004/internal/data/repos"
	"github.com/MartinPaviot/Nareo-sub004/internal/domain"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/backend"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/dedup"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/genconfig"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/items"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/validator"
	"github.com/MartinPaviot/Nareo-sub004/internal/observability"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/apierr"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/dbctx"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
	"github.com/MartinPaviot/Nareo-sub004/internal/realtime"
)

const (
	DefaultMinSourceChars = 100
	DefaultRunTimeout     = 15 * time.Minute
	DefaultStaleAfter     = 20 * time.Minute
)

// Mode selects how a chapter's batches reach persistence.
type Mode string

const (
	// ModeBatch requests every item type concurrently and persists the merged result.
	ModeBatch Mode = "batch"
	// ModeIncremental persists and streams each type's batch as soon as it completes.
	ModeIncremental Mode = "incremental"
)

func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "incremental", "stream", "callback":
		return ModeIncremental
	}
	return ModeBatch
}

type Options struct {
	MinSourceChars      int
	SimilarityThreshold float64
	// RunTimeout bounds backend calls and writes once the caller's context
	// is gone.
	RunTimeout time.Duration
	// StaleAfter lets a new run take over a "generating" course whose
	// progress record has not moved for this long.
	StaleAfter time.Duration
	Now        func() time.Time
}

type Request struct {
	CourseID   uuid.UUID
	ChapterID  *uuid.UUID
	Config     genconfig.Config
	Regenerate bool
	Mode       Mode
}

func (r Request) scope() repos.ItemScope {
	return repos.ItemScope{CourseID: r.CourseID, ChapterID: r.ChapterID}
}

// Dropped counts candidate items that were not persisted, by reason.
type Dropped struct {
	Administrative int `json:"administrative"`
	Duplicates     int `json:"duplicates"`
	Parse          int `json:"parse"`
	Persist        int `json:"persist"`
}

type Result struct {
	Status            string  `json:"status"`
	ItemsGenerated    int     `json:"items_generated"`
	TotalItems        int     `json:"total_items"`
	ChaptersSucceeded int     `json:"chapters_succeeded"`
	ChaptersFailed    int     `json:"chapters_failed"`
	Dropped           Dropped `json:"dropped"`
}

type Orchestrator struct {
	db        *gorm.DB
	log       *logger.Logger
	courses   repos.CourseRepo
	chapters  repos.ChapterRepo
	items     repos.GeneratedItemRepo
	backend   backend.Backend
	validator *validator.Validator
	opts      Options
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	courses repos.CourseRepo,
	chapters repos.ChapterRepo,
	itemRepo repos.GeneratedItemRepo,
	gen backend.Backend,
	v *validator.Validator,
	opts Options,
) *Orchestrator {
	if opts.MinSourceChars <= 0 {
		opts.MinSourceChars = DefaultMinSourceChars
	}
	if opts.SimilarityThreshold <= 0 || opts.SimilarityThreshold > 1 {
		opts.SimilarityThreshold = dedup.DefaultThreshold
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if v == nil {
		v = validator.Default()
	}
	return &Orchestrator{
		db:        db,
		log:       baseLog.With("component", "GenerationOrchestrator"),
		courses:   courses,
		chapters:  chapters,
		items:     itemRepo,
		backend:   gen,
		validator: v,
		opts:      opts,
	}
}

// run is the mutable state of one Run call. Only the orchestrating flow
// writes it; incremental callbacks are serialized by the backend.
type run struct {
	req      Request
	course   *domain.Course
	chapters []*domain.Chapter
	tracker  *dedup.Tracker
	sink     *realtime.Guard
	log      *logger.Logger

	// ctx outlives the caller so in-flight work can finish after a cancel.
	ctx context.Context

	existing  int
	target    int
	generated int
	progress  int
	chapter   int
	positions map[uuid.UUID]int
	result    Result
}

// Run executes one generation run and reports it on sink. Exactly one
// terminal event is emitted whatever the outcome. Errors returned before
// generation starts are apierr sentinels (insufficient content, not found,
// in progress, already generated); a run that produced no item returns
// apierr.ErrBackend alongside its result.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink realtime.Sink) (*Result, error) {
	guard := realtime.NewGuard(sink)
	if req.Mode == "" {
		req.Mode = ModeBatch
	}
	if len(req.Config.Types) == 0 || req.Config.PerType <= 0 {
		req.Config = genconfig.Default()
	}

	ctx, span := observability.StartSpan(ctx, "generation.run",
		attribute.String("course.id", req.CourseID.String()),
		attribute.String("mode", string(req.Mode)),
	)
	defer span.End()

	course, chapters, err := o.plan(ctx, req)
	if err != nil {
		o.emitFailure(guard, err)
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.RunTimeout)
	defer cancel()

	r := &run{
		req:       req,
		course:    course,
		chapters:  chapters,
		tracker:   dedup.NewTracker(o.opts.SimilarityThreshold),
		sink:      guard,
		log:       o.log.With("course_id", req.CourseID, "mode", req.Mode),
		ctx:       runCtx,
		positions: map[uuid.UUID]int{},
	}
	if err := o.begin(r); err != nil {
		o.emitFailure(guard, err)
		return nil, err
	}
	r.log.Info("generation run started", "chapters", len(chapters), "target", r.target, "existing", r.existing)

	aborted := false
	for i, ch := range r.chapters {
		if ctx.Err() != nil || runCtx.Err() != nil {
			aborted = true
			r.log.Warn("generation run aborted before chapter", "chapter_index", i, "error", firstErr(ctx.Err(), runCtx.Err()))
			break
		}
		r.chapter = i
		o.runChapter(ctx, r, ch)
	}
	if runCtx.Err() != nil {
		aborted = true
	}

	res, err := o.finish(r, aborted)
	span.SetAttributes(attribute.String("status", res.Status), attribute.Int("items", res.ItemsGenerated))
	return res, err
}

func firstErr(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

func (o *Orchestrator) emitFailure(sink realtime.Sink, err error) {
	code := apierr.CodeGenerationFailed
	var api *apierr.Error
	if errors.As(err, &api) && api.Code != "" {
		code = api.Code
	}
	_ = sink.Emit(realtime.Error(err.Error(), code))
}

// percent maps chapter-relative progress onto 5..95; 100 is reserved for
// the terminal update.
func (r *run) percent(chapterFraction float64) int {
	n := len(r.chapters)
	if n == 0 {
		return 5
	}
	p := 5 + int(90*(float64(r.chapter)+chapterFraction)/float64(n))
	if p < r.progress {
		p = r.progress
	}
	return p
}

func (o *Orchestrator) reportProgress(r *run, progress int, step string) {
	if progress > r.progress {
		r.progress = progress
	}
	_ = r.sink.Emit(realtime.Progress(r.progress, step, r.existing+r.generated, r.target))
	if err := o.courses.UpdateFields(dbctx.Context{Ctx: r.ctx}, r.course.ID, map[string]interface{}{
		"quiz_progress":     r.progress,
		"quiz_current_step": step,
	}); err != nil {
		r.log.Warn("progress update failed", "error", err)
	}
}

func chapterLabel(ch *domain.Chapter, i, n int) string {
	title := strings.TrimSpace(ch.Title)
	if title == "" {
		return fmt.Sprintf("chapter %d/%d", i+1, n)
	}
	return fmt.Sprintf("chapter %d/%d: %s", i+1, n, title)
}

func (o *Orchestrator) runChapter(parent context.Context, r *run, ch *domain.Chapter) {
	n := len(r.chapters)
	label := chapterLabel(ch, r.chapter, n)
	_, span := observability.StartSpan(parent, "generation.chapter",
		attribute.String("chapter.id", ch.ID.String()),
		attribute.Int("chapter.index", r.chapter),
	)
	defer span.End()

	o.reportProgress(r, r.percent(0), "Generating "+label)
	if err := o.chapters.UpdateFields(dbctx.Context{Ctx: r.ctx}, ch.ID, map[string]interface{}{
		"quiz_status":   domain.QuizStatusGenerating,
		"error_message": "",
	}); err != nil {
		r.log.Warn("chapter status update failed", "chapter_id", ch.ID, "error", err)
	}

	req := backend.Request{
		ChapterContext: strings.TrimSpace(r.course.Title + " > " + ch.Title),
		SourceText:     ch.SourceText,
		Language:       r.course.Language,
		Config:         r.req.Config,
	}
	before := r.generated

	var err error
	switch r.req.Mode {
	case ModeIncremental:
		done := 0
		_, err = o.backend.Generate(r.ctx, req, func(b backend.Batch) error {
			o.accept(r, ch, b.Items, b.Dropped)
			done++
			o.reportProgress(r, r.percent(float64(done)/float64(len(r.req.Config.Types))), "Generating "+label)
			return nil
		})
	default:
		var batches []backend.Batch
		batches, err = o.backend.Generate(r.ctx, req, nil)
		if err == nil {
			dropped := 0
			for _, b := range batches {
				dropped += b.Dropped
			}
			o.accept(r, ch, backend.Flatten(batches), dropped)
		}
	}

	produced := r.generated - before
	status := domain.QuizStatusReady
	errMsg := ""
	if err != nil && produced == 0 {
		r.result.ChaptersFailed++
		observability.Current().IncChapterFailure()
		span.RecordError(err)
		r.log.Warn("chapter generation failed; skipping", "chapter_id", ch.ID, "chapter_index", r.chapter, "error", err)
		status = domain.QuizStatusFailed
		errMsg = err.Error()
	} else {
		if err != nil {
			r.log.Warn("chapter generation ended early", "chapter_id", ch.ID, "produced", produced, "error", err)
			status = domain.QuizStatusPartial
		}
		r.result.ChaptersSucceeded++
	}
	if uerr := o.chapters.UpdateFields(dbctx.Context{Ctx: r.ctx}, ch.ID, map[string]interface{}{
		"quiz_status":   status,
		"error_message": errMsg,
	}); uerr != nil {
		r.log.Warn("chapter status update failed", "chapter_id", ch.ID, "error", uerr)
	}
	o.reportProgress(r, r.percent(1), "Finished "+label)
}

func (o *Orchestrator) finish(r *run, aborted bool) (*Result, error) {
	dbc := dbctx.Context{Ctx: r.ctx}
	total, err := o.items.Count(dbc, repos.ItemScope{CourseID: r.course.ID})
	if err != nil {
		r.log.Warn("final item count failed", "error", err)
		total = int64(r.existing + r.generated)
	}

	// Status follows the stored total: a scoped run that adds nothing leaves
	// the other chapters' items usable.
	status := domain.QuizStatusReady
	switch {
	case total == 0:
		status = domain.QuizStatusFailed
	case r.generated == 0, aborted:
		status = domain.QuizStatusPartial
	}

	updates := map[string]interface{}{
		"quiz_status":              status,
		"quiz_questions_generated": int(total),
		"quiz_total_questions":     int(total),
		"quiz_error_message":       "",
	}
	var runErr error
	switch status {
	case domain.QuizStatusFailed:
		msg := "no item could be generated"
		if aborted {
			msg = "generation aborted before any item was generated"
		}
		updates["quiz_current_step"] = "Failed"
		updates["quiz_error_message"] = msg
		runErr = apierr.Wrap(apierr.ErrBackend, errors.New(msg))
	case domain.QuizStatusPartial:
		updates["quiz_current_step"] = "Stopped early"
		if r.generated == 0 {
			updates["quiz_current_step"] = "No new items"
			updates["quiz_error_message"] = "no new item could be generated"
		}
	default:
		updates["quiz_progress"] = 100
		updates["quiz_current_step"] = "Completed"
		r.progress = 100
	}
	if err := o.courses.UpdateFields(dbc, r.course.ID, updates); err != nil {
		r.log.Error("final status update failed", "error", err, "status", status)
	}

	r.result.Status = status
	r.result.ItemsGenerated = r.generated
	r.result.TotalItems = int(total)

	m := observability.Current()
	m.IncGenerationRun(status)
	m.AddGenerationItems("accepted", r.generated)
	m.AddGenerationItems("administrative", r.result.Dropped.Administrative)
	m.AddGenerationItems("duplicate", r.result.Dropped.Duplicates)
	m.AddGenerationItems("parse", r.result.Dropped.Parse)
	m.AddGenerationItems("persist", r.result.Dropped.Persist)

	if runErr != nil {
		_ = r.sink.Emit(realtime.Error(runErr.Error(), apierr.CodeGenerationFailed))
	} else {
		if status == domain.QuizStatusReady {
			_ = r.sink.Emit(realtime.Progress(100, "Completed", int(total), int(total)))
		}
		_ = r.sink.Emit(realtime.Complete(int(total), status))
	}
	r.log.Info("generation run finished",
		"status", status,
		"items", r.generated,
		"total", total,
		"chapters_ok", r.result.ChaptersSucceeded,
		"chapters_failed", r.result.ChaptersFailed,
		"dropped_admin", r.result.Dropped.Administrative,
		"dropped_dup", r.result.Dropped.Duplicates,
		"dropped_parse", r.result.Dropped.Parse,
		"dropped_persist", r.result.Dropped.Persist,
	)
	res := r.result
	return &res, runErr
}

// displayTexts returns the texts the dedup corpus is seeded with.
func displayTexts(rows []*domain.GeneratedItem) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		it, err := items.FromRow(row)
		if err != nil {
			out = append(out, row.Prompt)
			continue
		}
		out = append(out, it.DisplayText())
	}
	return out
}
