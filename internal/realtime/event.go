package realtime

import (
	"errors"

	"github.com/MartinPaviot/Nareo-sub004/internal/domain"
)

var ErrStreamClosed = errors.New("stream closed")

type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventQuestion  EventKind = "question"
	EventFlashcard EventKind = "flashcard"
	EventComplete  EventKind = "complete"
	EventError     EventKind = "error"
)

// Event is one frame of a generation stream.
type Event struct {
	Kind EventKind
	Data any
}

type ProgressData struct {
	Progress       int    `json:"progress"`
	Step           string `json:"step"`
	ItemsGenerated int    `json:"itemsGenerated"`
	TotalItems     int    `json:"totalItems"`
}

type ItemData struct {
	Data           any `json:"data"`
	ItemsGenerated int `json:"itemsGenerated"`
}

type CompleteData struct {
	TotalItems int    `json:"totalItems"`
	Status     string `json:"status"`
}

type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func Progress(progress int, step string, itemsGenerated, totalItems int) Event {
	return Event{Kind: EventProgress, Data: ProgressData{
		Progress:       clampPercent(progress),
		Step:           step,
		ItemsGenerated: itemsGenerated,
		TotalItems:     totalItems,
	}}
}

// Item builds a question or flashcard event depending on kind.
func Item(kind string, data any, itemsGenerated int) Event {
	k := EventQuestion
	if kind == domain.ItemKindFlashcard {
		k = EventFlashcard
	}
	return Event{Kind: k, Data: ItemData{Data: data, ItemsGenerated: itemsGenerated}}
}

func Complete(totalItems int, status string) Event {
	return Event{Kind: EventComplete, Data: CompleteData{TotalItems: totalItems, Status: status}}
}

func Error(message, code string) Event {
	return Event{Kind: EventError, Data: ErrorData{Message: message, Code: code}}
}

func (e Event) Terminal() bool {
	return e.Kind == EventComplete || e.Kind == EventError
}

// SSEEvent names the hub event that mirrors e.
func (e Event) SSEEvent() SSEEvent {
	switch e.Kind {
	case EventProgress:
		return SSEEventQuizProgress
	case EventQuestion:
		return SSEEventQuizQuestion
	case EventFlashcard:
		return SSEEventQuizFlashcard
	case EventComplete:
		return SSEEventQuizComplete
	default:
		return SSEEventQuizError
	}
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
