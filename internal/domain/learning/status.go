package learning

const (
	QuizStatusPending    = "pending"
	QuizStatusGenerating = "generating"
	QuizStatusReady      = "ready"
	QuizStatusPartial    = "partial"
	QuizStatusFailed     = "failed"
)

const (
	CourseStatusPending    = "pending"
	CourseStatusProcessing = "processing"
	CourseStatusReady      = "ready"
	CourseStatusFailed     = "failed"
)

const (
	ItemKindQuestion  = "question"
	ItemKindFlashcard = "flashcard"
)

// IsTerminalQuizStatus reports whether a generation run has finished.
func IsTerminalQuizStatus(s string) bool {
	switch s {
	case QuizStatusReady, QuizStatusPartial, QuizStatusFailed:
		return true
	}
	return false
}
