package realtime

import (
	"strings"

	"github.com/google/uuid"
)

type SSEEvent string

const (
	SSEEventJobCreated  SSEEvent = "JobCreated"
	SSEEventJobProgress SSEEvent = "JobProgress"
	SSEEventJobFailed   SSEEvent = "JobFailed"
	SSEEventJobDone     SSEEvent = "JobDone"

	// Generation events mirrored onto a course channel. Data is the same
	// payload the direct stream sends for the matching EventKind.
	SSEEventQuizProgress  SSEEvent = "QuizProgress"
	SSEEventQuizQuestion  SSEEvent = "QuizQuestion"
	SSEEventQuizFlashcard SSEEvent = "QuizFlashcard"
	SSEEventQuizComplete  SSEEvent = "QuizComplete"
	SSEEventQuizError     SSEEvent = "QuizError"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

// UserChannel is joined by every session of a user.
func UserChannel(userID uuid.UUID) string { return userID.String() }

const courseChannelPrefix = "course:"

// CourseChannel carries the generation events of one course.
func CourseChannel(courseID uuid.UUID) string { return courseChannelPrefix + courseID.String() }

// CourseFromChannel reverses CourseChannel.
func CourseFromChannel(channel string) (uuid.UUID, bool) {
	raw, ok := strings.CutPrefix(channel, courseChannelPrefix)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	return id, err == nil
}
