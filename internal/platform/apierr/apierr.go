package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so wrapped instances of the
// sentinels below satisfy errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return other.Code != "" && e.Code == other.Code
}

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Wrap keeps the status and code of kind while replacing the message.
func Wrap(kind *Error, err error) *Error {
	if kind == nil {
		return New(http.StatusInternalServerError, "internal", err)
	}
	return &Error{Status: kind.Status, Code: kind.Code, Err: err}
}

const (
	CodeInsufficientContent  = "insufficient_content"
	CodeCourseNotFound       = "course_not_found"
	CodeChapterNotFound      = "chapter_not_found"
	CodeItemNotFound         = "item_not_found"
	CodeJobNotFound          = "job_not_found"
	CodeGenerationInProgress = "generation_in_progress"
	CodeAlreadyGenerated     = "already_generated"
	CodeGenerationFailed     = "generation_failed"
	CodeStreamTimeout        = "stream_timeout"
	CodeInvalidRating        = "invalid_rating"
)

var (
	ErrInsufficientContent  = New(http.StatusUnprocessableEntity, CodeInsufficientContent, errors.New("no chapter has enough source text to generate from"))
	ErrCourseNotFound       = New(http.StatusNotFound, CodeCourseNotFound, errors.New("course not found"))
	ErrChapterNotFound      = New(http.StatusNotFound, CodeChapterNotFound, errors.New("chapter not found"))
	ErrItemNotFound         = New(http.StatusNotFound, CodeItemNotFound, errors.New("item not found"))
	ErrJobNotFound          = New(http.StatusNotFound, CodeJobNotFound, errors.New("job not found"))
	ErrGenerationInProgress = New(http.StatusConflict, CodeGenerationInProgress, errors.New("generation already in progress"))
	ErrAlreadyGenerated     = New(http.StatusConflict, CodeAlreadyGenerated, errors.New("items already generated; pass regenerate to replace them"))
	ErrBackend              = New(http.StatusBadGateway, CodeGenerationFailed, errors.New("generation backend failed"))
	ErrStreamTimeout        = New(http.StatusGatewayTimeout, CodeStreamTimeout, errors.New("generation stream timed out"))
	ErrInvalidRating        = New(http.StatusBadRequest, CodeInvalidRating, errors.New("rating must be one of hard, good, easy"))
)
