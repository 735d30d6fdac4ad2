package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MartinPaviot/Nareo-sub004/internal/http/response"
	"github.com/MartinPaviot/Nareo-sub004/internal/observability"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/apierr"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
	"github.com/MartinPaviot/Nareo-sub004/internal/realtime"
	"github.com/MartinPaviot/Nareo-sub004/internal/services"
)

const (
	streamModePush = "push"
	streamModePoll = "poll"
)

type QuizHandler struct {
	log    *logger.Logger
	gen    services.GenerationService
	bridge *realtime.PollBridge
}

func NewQuizHandler(log *logger.Logger, gen services.GenerationService, bridge *realtime.PollBridge) *QuizHandler {
	return &QuizHandler{
		log:    log.With("handler", "QuizHandler"),
		gen:    gen,
		bridge: bridge,
	}
}

// POST /api/courses/:id/quiz/generate
//
// With Accept: text/event-stream (or ?stream=1) the run happens inside the
// request and events are pushed as they are produced. Otherwise the run is
// queued for a worker and the job is returned.
func (h *QuizHandler) Generate(c *gin.Context) {
	courseID, ok := pathUUID(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	var in services.GenerateInput
	if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	userID := requestUserID(c)

	if !wantsEventStream(c) {
		job, err := h.gen.Enqueue(c.Request.Context(), userID, courseID, in)
		if err != nil {
			h.respondErr(c, "enqueue generation", err)
			return
		}
		response.RespondAccepted(c, gin.H{"job": job})
		return
	}

	sw, err := realtime.NewStreamWriter(c.Writer)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", err)
		return
	}
	sink := countingSink(streamModePush, sw)
	m := observability.Current()
	m.StreamOpened(streamModePush)
	defer m.StreamClosed(streamModePush)

	res, err := h.gen.Run(c.Request.Context(), userID, courseID, in, sink)
	if err != nil {
		h.log.Warn("generation run ended with error", "course_id", courseID, "error", err)
		return
	}
	h.log.Info("generation run finished",
		"course_id", courseID,
		"status", res.Status,
		"items_generated", res.ItemsGenerated,
		"chapters_failed", res.ChaptersFailed,
	)
}

// GET /api/courses/:id/quiz/stream
func (h *QuizHandler) Stream(c *gin.Context) {
	courseID, ok := pathUUID(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	// Ownership is checked before the stream opens so errors stay JSON.
	if _, err := h.gen.Status(c.Request.Context(), requestUserID(c), courseID); err != nil {
		h.respondErr(c, "stream status", err)
		return
	}

	sw, err := realtime.NewStreamWriter(c.Writer)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", err)
		return
	}
	m := observability.Current()
	m.StreamOpened(streamModePoll)
	defer m.StreamClosed(streamModePoll)

	if err := h.bridge.Stream(c.Request.Context(), courseID, countingSink(streamModePoll, sw)); err != nil {
		h.log.Debug("poll stream ended", "course_id", courseID, "error", err)
	}
}

// GET /api/courses/:id/quiz/status
func (h *QuizHandler) Status(c *gin.Context) {
	courseID, ok := pathUUID(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	p, err := h.gen.Status(c.Request.Context(), requestUserID(c), courseID)
	if err != nil {
		h.respondErr(c, "quiz status", err)
		return
	}
	response.RespondOK(c, p)
}

// GET /api/courses/:id/items?chapter_id=
func (h *QuizHandler) Items(c *gin.Context) {
	courseID, ok := pathUUID(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	chapterID, err := queryUUID(c, "chapter_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_chapter_id", err)
		return
	}
	rows, err := h.gen.Items(c.Request.Context(), requestUserID(c), courseID, chapterID)
	if err != nil {
		h.respondErr(c, "list items", err)
		return
	}
	response.RespondOK(c, gin.H{"items": rows})
}

func (h *QuizHandler) respondErr(c *gin.Context, op string, err error) {
	var api *apierr.Error
	if !errors.As(err, &api) {
		h.log.Error(op+" failed", "error", err)
	}
	response.RespondAPIError(c, err)
}

func countingSink(mode string, next realtime.Sink) realtime.Sink {
	m := observability.Current()
	return realtime.SinkFunc(func(ev realtime.Event) error {
		m.IncStreamEvent(mode, string(ev.Kind))
		return next.Emit(ev)
	})
}
