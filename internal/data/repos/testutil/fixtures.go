package testutil

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/MartinPaviot/Nareo-sub004/internal/domain"
)

func SeedCourse(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID) *types.Course {
	tb.Helper()
	c := &types.Course{
		ID:         uuid.New(),
		UserID:     userID,
		Title:      "Cell biology",
		Language:   "en",
		Status:     types.CourseStatusReady,
		QuizStatus: types.QuizStatusPending,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed course: %v", err)
	}
	return c
}

func SeedChapter(tb testing.TB, ctx context.Context, tx *gorm.DB, courseID uuid.UUID, index int, sourceText string) *types.Chapter {
	tb.Helper()
	ch := &types.Chapter{
		ID:         uuid.New(),
		CourseID:   courseID,
		OrderIndex: index,
		Title:      "Chapter",
		SourceText: sourceText,
		Status:     types.CourseStatusReady,
		QuizStatus: types.QuizStatusPending,
	}
	if err := tx.WithContext(ctx).Create(ch).Error; err != nil {
		tb.Fatalf("seed chapter: %v", err)
	}
	return ch
}

func SeedItem(tb testing.TB, ctx context.Context, tx *gorm.DB, courseID uuid.UUID, chapterID *uuid.UUID, kind, itemType, prompt string) *types.GeneratedItem {
	tb.Helper()
	it := &types.GeneratedItem{
		ID:        uuid.New(),
		CourseID:  courseID,
		ChapterID: chapterID,
		Kind:      kind,
		Type:      itemType,
		Prompt:    prompt,
		Payload:   []byte(`{}`),
	}
	if err := tx.WithContext(ctx).Create(it).Error; err != nil {
		tb.Fatalf("seed item: %v", err)
	}
	return it
}

// LongText returns a substantive paragraph of at least n characters.
func LongText(n int) string {
	const para = "Mitochondria produce ATP through oxidative phosphorylation across the inner membrane. "
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(para)
	}
	return b.String()
}
