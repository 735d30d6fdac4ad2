package handlers

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/MartinPaviot/Nareo-sub004/internal/http/response"
	"github.com/MartinPaviot/Nareo-sub004/internal/observability"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/ctxutil"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
	"github.com/MartinPaviot/Nareo-sub004/internal/realtime"
	"github.com/MartinPaviot/Nareo-sub004/internal/services"
)

const streamModeHub = "hub"

type RealtimeHandler struct {
	Log *logger.Logger
	Hub *realtime.SSEHub
	gen services.GenerationService

	mu      sync.RWMutex
	clients map[uuid.UUID]*realtime.SSEClient // key: SessionID
}

// NewRealtimeHandler serves hub subscriptions. gen is used to check that a
// course channel belongs to the caller before subscribing.
func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, gen services.GenerationService) *RealtimeHandler {
	return &RealtimeHandler{
		Log:     log.With("handler", "RealtimeHandler"),
		Hub:     hub,
		gen:     gen,
		clients: make(map[uuid.UUID]*realtime.SSEClient),
	}
}

// GET /api/sse/stream
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil || rd.SessionID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return
	}
	userID := rd.UserID
	sessionID := rd.SessionID
	h.Log.Info("SSEStream open", "user_id", userID.String(), "session_id", sessionID.String())

	h.mu.Lock()
	// A reconnecting session replaces its previous client.
	if existing, ok := h.clients[sessionID]; ok {
		h.Hub.CloseClient(existing)
		delete(h.clients, sessionID)
	}
	client := h.Hub.NewSSEClient(userID)
	h.clients[sessionID] = client
	h.mu.Unlock()

	h.Hub.AddChannel(client, realtime.UserChannel(userID))
	if raw := strings.TrimSpace(c.Query("course_id")); raw != "" {
		if courseID, err := uuid.Parse(raw); err == nil && h.ownsCourse(c, userID, courseID) {
			h.Hub.AddChannel(client, realtime.CourseChannel(courseID))
		}
	}

	m := observability.Current()
	m.StreamOpened(streamModeHub)
	defer m.StreamClosed(streamModeHub)

	h.Hub.ServeHTTP(c.Writer, c.Request, client)
	h.Log.Info("SSEStream closed",
		"session_id", sessionID.String(),
		"courses", h.Hub.WatchedCourses(client),
		"open_ms", time.Since(client.OpenedAt).Milliseconds(),
	)

	h.mu.Lock()
	if h.clients[sessionID] == client {
		delete(h.clients, sessionID)
	}
	h.mu.Unlock()
	h.Hub.CloseClient(client)
}

type channelRequest struct {
	Channel string `json:"channel"`
}

// POST /api/sse/subscribe
func (h *RealtimeHandler) SSESubscribe(c *gin.Context) {
	client, channel, ok := h.resolve(c)
	if !ok {
		return
	}
	h.Hub.AddChannel(client, channel)
	response.RespondOK(c, gin.H{"message": "subscribed", "channel": channel, "courses": h.Hub.WatchedCourses(client)})
}

// POST /api/sse/unsubscribe
func (h *RealtimeHandler) SSEUnsubscribe(c *gin.Context) {
	client, channel, ok := h.resolve(c)
	if !ok {
		return
	}
	h.Hub.RemoveChannel(client, channel)
	response.RespondOK(c, gin.H{"message": "unsubscribed", "channel": channel, "courses": h.Hub.WatchedCourses(client)})
}

// resolve finds the session's live client and validates the channel. Only
// the caller's own user channel and course channels are accepted.
func (h *RealtimeHandler) resolve(c *gin.Context) (*realtime.SSEClient, string, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil || rd.SessionID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return nil, "", false
	}
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Channel) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_channel", errors.New("invalid channel"))
		return nil, "", false
	}
	channel := strings.TrimSpace(req.Channel)
	if !h.allowed(c, rd.UserID, channel) {
		response.RespondError(c, http.StatusForbidden, "forbidden_channel", errors.New("channel not allowed"))
		return nil, "", false
	}

	h.mu.RLock()
	client, exists := h.clients[rd.SessionID]
	h.mu.RUnlock()
	if !exists {
		response.RespondError(c, http.StatusConflict, "no_stream", errors.New("no active SSE connection for this session"))
		return nil, "", false
	}
	return client, channel, true
}

func (h *RealtimeHandler) allowed(c *gin.Context, userID uuid.UUID, channel string) bool {
	if channel == realtime.UserChannel(userID) {
		return true
	}
	courseID, ok := realtime.CourseFromChannel(channel)
	return ok && h.ownsCourse(c, userID, courseID)
}

func (h *RealtimeHandler) ownsCourse(c *gin.Context, userID, courseID uuid.UUID) bool {
	if h.gen == nil {
		return false
	}
	_, err := h.gen.Status(c.Request.Context(), userID, courseID)
	return err == nil
}
