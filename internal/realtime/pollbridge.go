package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MartinPaviot/Nareo-sub004/internal/domain"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/apierr"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
)

const (
	DefaultPollInterval      = 500 * time.Millisecond
	DefaultStreamMaxDuration = 5 * time.Minute

	StepQueued = "Queued"
)

// PollSource reads the persisted state of a generation run.
type PollSource interface {
	// Progress returns nil when the course does not exist.
	Progress(ctx context.Context, courseID uuid.UUID) (*domain.CourseProgress, error)
	// Items returns the course's items in insertion order.
	Items(ctx context.Context, courseID uuid.UUID) ([]*domain.GeneratedItem, error)
}

type PollConfig struct {
	Interval    time.Duration
	MaxDuration time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// PollBridge turns persisted progress into a generation stream, so a run can
// be observed from any process and by any number of clients.
type PollBridge struct {
	log *logger.Logger
	src PollSource
	cfg PollConfig
}

func NewPollBridge(log *logger.Logger, src PollSource, cfg PollConfig) *PollBridge {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultStreamMaxDuration
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PollBridge{log: log.With("component", "PollBridge"), src: src, cfg: cfg}
}

// pollState belongs to one stream.
type pollState struct {
	sent         map[uuid.UUID]struct{}
	lastProgress *ProgressData
}

// Stream emits events for courseID until the run reaches a terminal status,
// the stream ceiling passes, or ctx is canceled. Cancellation returns
// ctx.Err() without a terminal event; the ceiling emits one error event and
// returns apierr.ErrStreamTimeout.
func (b *PollBridge) Stream(ctx context.Context, courseID uuid.UUID, sink Sink) error {
	g := NewGuard(sink)
	st := &pollState{sent: make(map[uuid.UUID]struct{})}
	deadline := b.cfg.Now().Add(b.cfg.MaxDuration)

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !b.cfg.Now().Before(deadline) {
			b.log.Warn("poll stream ceiling reached", "course_id", courseID, "sent", len(st.sent))
			_ = g.Emit(Error("generation stream timed out", apierr.CodeStreamTimeout))
			return apierr.ErrStreamTimeout
		}
		done, err := b.poll(ctx, courseID, st, g)
		if done {
			return err
		}
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			b.log.Warn("poll failed; retrying", "course_id", courseID, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *PollBridge) poll(ctx context.Context, courseID uuid.UUID, st *pollState, g *Guard) (bool, error) {
	prog, err := b.src.Progress(ctx, courseID)
	if err != nil {
		return false, fmt.Errorf("read progress: %w", err)
	}
	if prog == nil {
		return true, g.Emit(Error("course not found", apierr.CodeCourseNotFound))
	}
	if prog.Queued {
		// The stored state is the previous run's; wait for the worker.
		return false, b.emitProgress(st, g, ProgressData{Step: StepQueued})
	}

	rows, err := b.src.Items(ctx, courseID)
	if err != nil {
		return false, fmt.Errorf("read items: %w", err)
	}
	for _, row := range rows {
		if row == nil {
			continue
		}
		if _, ok := st.sent[row.ID]; ok {
			continue
		}
		st.sent[row.ID] = struct{}{}
		if err := g.Emit(Item(row.Kind, row, len(st.sent))); err != nil {
			return true, err
		}
	}

	cur := ProgressData{
		Progress:       clampPercent(prog.Progress),
		Step:           prog.Step,
		ItemsGenerated: max(prog.ItemsGenerated, len(st.sent)),
		TotalItems:     prog.TotalItems,
	}
	if err := b.emitProgress(st, g, cur); err != nil {
		return true, err
	}

	switch prog.QuizStatus {
	case domain.QuizStatusReady, domain.QuizStatusPartial:
		return true, g.Emit(Complete(len(st.sent), prog.QuizStatus))
	case domain.QuizStatusFailed:
		msg := prog.ErrorMessage
		if msg == "" {
			msg = "generation failed"
		}
		return true, g.Emit(Error(msg, apierr.CodeGenerationFailed))
	}
	return false, nil
}

// emitProgress sends cur unless it repeats the last progress of the stream.
func (b *PollBridge) emitProgress(st *pollState, g *Guard, cur ProgressData) error {
	if st.lastProgress != nil && *st.lastProgress == cur {
		return nil
	}
	st.lastProgress = &cur
	return g.Emit(Event{Kind: EventProgress, Data: cur})
}
