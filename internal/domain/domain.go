package domain

import (
	"github.com/MartinPaviot/Nareo-sub004/internal/domain/jobs"
	"github.com/MartinPaviot/Nareo-sub004/internal/domain/learning"
)

const (
	QuizStatusPending    = learning.QuizStatusPending
	QuizStatusGenerating = learning.QuizStatusGenerating
	QuizStatusReady      = learning.QuizStatusReady
	QuizStatusPartial    = learning.QuizStatusPartial
	QuizStatusFailed     = learning.QuizStatusFailed

	CourseStatusPending    = learning.CourseStatusPending
	CourseStatusProcessing = learning.CourseStatusProcessing
	CourseStatusReady      = learning.CourseStatusReady
	CourseStatusFailed     = learning.CourseStatusFailed

	ItemKindQuestion  = learning.ItemKindQuestion
	ItemKindFlashcard = learning.ItemKindFlashcard

	JobStatusQueued    = jobs.StatusQueued
	JobStatusRunning   = jobs.StatusRunning
	JobStatusSucceeded = jobs.StatusSucceeded
	JobStatusFailed    = jobs.StatusFailed
	JobStatusCanceled  = jobs.StatusCanceled
)

var IsTerminalQuizStatus = learning.IsTerminalQuizStatus

type Course = learning.Course
type CourseProgress = learning.Progress
type Chapter = learning.Chapter
type GeneratedItem = learning.GeneratedItem
type ItemConcept = learning.ItemConcept
type ReviewState = learning.ReviewState

type JobRun = jobs.JobRun

// Models lists every table managed by AutoMigrate.
func Models() []any {
	return []any{
		&Course{},
		&Chapter{},
		&GeneratedItem{},
		&ItemConcept{},
		&ReviewState{},
		&JobRun{},
	}
}
